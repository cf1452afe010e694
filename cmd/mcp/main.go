package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// JSON-RPC structures
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCP structures
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCP Server
type MCPServer struct {
	apiURL      string
	apiUsername string
	apiPassword string
	client      *http.Client
}

func NewMCPServer() *MCPServer {
	apiURL := os.Getenv("CONTACTBOOK_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	return &MCPServer{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiUsername: os.Getenv("CONTACTBOOK_API_USERNAME"),
		apiPassword: os.Getenv("CONTACTBOOK_API_PASSWORD"),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Run serves newline-delimited JSON-RPC requests until in is exhausted
func (s *MCPServer) Run(in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "Error reading: %v\n", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing JSON: %v\n", err)
			continue
		}

		// notifications carry no ID and get no response
		if req.ID == nil {
			continue
		}

		response := s.handleRequest(req)
		responseBytes, _ := json.Marshal(response)
		fmt.Fprintln(out, string(responseBytes))
	}
}

func (s *MCPServer) handleRequest(req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	default:
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "Method not found"},
		}
	}
}

func (s *MCPServer) handleInitialize(req JSONRPCRequest) JSONRPCResponse {
	result := InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
	}
	result.ServerInfo.Name = "contactbook-mcp"
	result.ServerInfo.Version = "1.0.0"

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

var indexProperty = Property{Type: "integer", Description: "Contact number as shown by contactbook_list_contacts (1-based)"}

func (s *MCPServer) handleToolsList(req JSONRPCRequest) JSONRPCResponse {
	tools := []Tool{
		{
			Name:        "contactbook_list_contacts",
			Description: "List contacts in display order. The index of each contact is used by the other tools.",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
		},
		{
			Name:        "contactbook_add_contact",
			Description: "Add a contact with an empty schedule.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"name": {Type: "string", Description: "Full name"},
					"role": {Type: "string", Description: "Relationship", Enum: []string{"family", "friend", "colleague", "contact"}},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        "contactbook_edit_contact",
			Description: "Change the given fields of a contact. Omitted fields keep their value; an empty tags list clears the tags.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"index":   indexProperty,
					"name":    {Type: "string", Description: "Full name"},
					"phone":   {Type: "string", Description: "Phone number"},
					"email":   {Type: "string", Description: "Email address"},
					"address": {Type: "string", Description: "Postal address"},
					"role":    {Type: "string", Description: "Relationship", Enum: []string{"family", "friend", "colleague", "contact"}},
					"notes":   {Type: "string", Description: "Free-form notes"},
					"tags":    {Type: "array", Description: "Tags replacing the current ones"},
				},
				Required: []string{"index"},
			},
		},
		{
			Name:        "contactbook_add_event",
			Description: "Add a weekly recurring event to a contact's schedule.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"index":          indexProperty,
					"description":    {Type: "string", Description: "Alphanumeric description"},
					"date":           {Type: "string", Description: "First occurrence, YYYY-MM-DD"},
					"time":           {Type: "string", Description: "Start time, HH:MM (24h)"},
					"duration_hours": {Type: "number", Description: "Length in hours, greater than zero"},
				},
				Required: []string{"index", "description", "date", "time", "duration_hours"},
			},
		},
		{
			Name:        "contactbook_upcoming_schedule",
			Description: "Next occurrence of every event of a contact within the coming days. days=0 lists what is left today.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"index": indexProperty,
					"days":  {Type: "integer", Description: "Days to look ahead (default from server config)"},
				},
				Required: []string{"index"},
			},
		},
		{
			Name:        "contactbook_free_contacts",
			Description: "Contacts with no event covering the given time. Contacts without a schedule count as busy.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"time": {Type: "string", Description: "HH:MM (24h)"},
					"date": {Type: "string", Description: "YYYY-MM-DD, defaults to today"},
				},
				Required: []string{"time"},
			},
		},
		{
			Name:        "contactbook_export_ics",
			Description: "A contact's schedule as an iCalendar document with weekly recurrence rules.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"index": indexProperty},
				Required:   []string{"index"},
			},
		},
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: tools}}
}

func (s *MCPServer) handleToolsCall(req JSONRPCRequest) JSONRPCResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32602, Message: "Invalid params"},
		}
	}

	var result string
	var isError bool
	args := params.Arguments

	switch params.Name {
	case "contactbook_list_contacts":
		result, isError = s.apiGet("/api/people")
	case "contactbook_add_contact":
		result, isError = s.apiPost("/api/people", args)
	case "contactbook_edit_contact":
		body := make(map[string]interface{}, len(args))
		for k, v := range args {
			if k != "index" {
				body[k] = v
			}
		}
		result, isError = s.apiRequest("PATCH", "/api/person/"+argString(args, "index"), body)
	case "contactbook_add_event":
		body := map[string]interface{}{
			"description":    args["description"],
			"date":           args["date"],
			"time":           args["time"],
			"duration_hours": args["duration_hours"],
		}
		result, isError = s.apiPost("/api/person/"+argString(args, "index")+"/events", body)
	case "contactbook_upcoming_schedule":
		path := "/api/person/" + argString(args, "index") + "/schedule"
		if days := argString(args, "days"); days != "" {
			path += "?days=" + url.QueryEscape(days)
		}
		result, isError = s.apiGet(path)
	case "contactbook_free_contacts":
		q := url.Values{}
		q.Set("time", argString(args, "time"))
		if date := argString(args, "date"); date != "" {
			q.Set("date", date)
		}
		result, isError = s.apiGet("/api/free?" + q.Encode())
	case "contactbook_export_ics":
		result, isError = s.apiGet("/api/person/" + argString(args, "index") + "/ics")
	default:
		result = "Unknown tool: " + params.Name
		isError = true
	}

	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

// argString renders a tool argument for a URL; JSON numbers arrive as float64
func argString(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return url.PathEscape(v)
	default:
		return url.PathEscape(fmt.Sprintf("%v", v))
	}
}

func (s *MCPServer) apiGet(path string) (string, bool) {
	return s.apiRequest("GET", path, nil)
}

func (s *MCPServer) apiPost(path string, body interface{}) (string, bool) {
	return s.apiRequest("POST", path, body)
}

func (s *MCPServer) apiRequest(method, path string, body interface{}) (string, bool) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.apiURL+path, reqBody)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}

	req.SetBasicAuth(s.apiUsername, s.apiPassword)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	// Parse and format the response
	var apiResp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}

	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return string(respBody), resp.StatusCode >= 400
	}

	if !apiResp.Success {
		return fmt.Sprintf("API Error: %s", apiResp.Error), true
	}

	// Pretty print the data
	var prettyData bytes.Buffer
	if err := json.Indent(&prettyData, apiResp.Data, "", "  "); err != nil {
		return string(apiResp.Data), false
	}

	return prettyData.String(), false
}

func main() {
	server := NewMCPServer()
	server.Run(os.Stdin, os.Stdout)
}
