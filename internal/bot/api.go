package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/contactbook/internal/domain"
	"github.com/tazhate/contactbook/internal/service"
)

// API Response types
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type PersonResponse struct {
	Index   int      `json:"index,omitempty"`
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Phone   string   `json:"phone,omitempty"`
	Email   string   `json:"email,omitempty"`
	Address string   `json:"address,omitempty"`
	Notes   string   `json:"notes,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Events  int      `json:"events"`
}

type EventResponse struct {
	Description   string  `json:"description"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	DurationHours float64 `json:"duration_hours"`
	Summary       string  `json:"summary"`
}

type ScheduleResponse struct {
	Person PersonResponse  `json:"person"`
	Days   int             `json:"days"`
	Events []EventResponse `json:"events"`
}

type FreeResponse struct {
	Date    string           `json:"date"`
	Time    string           `json:"time"`
	Persons []PersonResponse `json:"persons"`
	Message string           `json:"message"`
}

// SetupAPI registers the health check and, when credentials are
// configured, the REST API with Basic Auth.
func (b *Bot) SetupAPI() {
	b.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if !b.cfg.APIEnabled() {
		return // API disabled if no credentials
	}

	b.mux.HandleFunc("/api/people", b.basicAuth(b.apiPeople))
	b.mux.HandleFunc("/api/person/{index}", b.basicAuth(b.apiPerson))
	b.mux.HandleFunc("/api/person/{index}/events", b.basicAuth(b.apiPersonEvents))
	b.mux.HandleFunc("/api/person/{index}/schedule", b.basicAuth(b.apiPersonSchedule))
	b.mux.HandleFunc("/api/person/{index}/ics", b.basicAuth(b.apiPersonICS))
	b.mux.HandleFunc("/api/free", b.basicAuth(b.apiFree))
}

// basicAuth middleware
func (b *Bot) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != b.cfg.APIUsername || password != b.cfg.APIPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="ContactBook API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *Bot) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonCreated(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// serviceError maps service errors to HTTP statuses
func (b *Bot) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidIndex):
		b.jsonError(w, service.MessageInvalidPersonIndex, http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		b.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNothingToExport):
		b.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrDuplicatePerson):
		b.jsonError(w, err.Error(), http.StatusConflict)
	default:
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// ensureOwnerUser returns the owner user, creating it if the owner has not
// talked to the bot yet
func (b *Bot) ensureOwnerUser() (*domain.User, error) {
	user, err := b.storage.GetUserByTelegramID(b.cfg.OwnerTelegramID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	newUser := &domain.User{
		TelegramID: b.cfg.OwnerTelegramID,
		Name:       "Owner", // Updated on first Telegram interaction
		Role:       domain.RoleOwner,
	}
	if err := b.storage.CreateUser(newUser); err != nil {
		return nil, fmt.Errorf("create owner user: %w", err)
	}
	return newUser, nil
}

func (b *Bot) apiUser(w http.ResponseWriter) (*domain.User, bool) {
	user, err := b.ensureOwnerUser()
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}

func (b *Bot) pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := service.ParseIndex(r.PathValue("index"))
	if err != nil {
		b.serviceError(w, err)
		return 0, false
	}
	return index, true
}

// GET /api/people - numbered contact list
// POST /api/people - add a contact
func (b *Bot) apiPeople(w http.ResponseWriter, r *http.Request) {
	user, ok := b.apiUser(w)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		persons, err := b.personService.List(user.ID)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonResponse(w, personsToResponse(persons))

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			b.jsonError(w, "Name is required", http.StatusBadRequest)
			return
		}

		role := domain.RoleContact
		if req.Role != "" {
			parsed, ok := domain.ParsePersonRole(req.Role)
			if !ok {
				b.jsonError(w, "Unknown role", http.StatusBadRequest)
				return
			}
			role = parsed
		}

		person, err := b.personService.Create(user.ID, req.Name, role)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonCreated(w, personToResponse(0, person))

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/person/{index} - one contact
// PATCH /api/person/{index} - edit the given fields
// DELETE /api/person/{index} - delete a contact
func (b *Bot) apiPerson(w http.ResponseWriter, r *http.Request) {
	user, ok := b.apiUser(w)
	if !ok {
		return
	}
	index, ok := b.pathIndex(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		person, err := b.personService.Get(user.ID, index)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonResponse(w, personToResponse(index, person))

	case http.MethodPatch:
		var req struct {
			Name    *string   `json:"name"`
			Phone   *string   `json:"phone"`
			Email   *string   `json:"email"`
			Address *string   `json:"address"`
			Role    *string   `json:"role"`
			Notes   *string   `json:"notes"`
			Tags    *[]string `json:"tags"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		descriptor := domain.PersonDescriptor{
			Name:    req.Name,
			Phone:   req.Phone,
			Email:   req.Email,
			Address: req.Address,
			Notes:   req.Notes,
			Tags:    req.Tags,
		}
		if req.Role != nil {
			role, valid := domain.ParsePersonRole(*req.Role)
			if !valid {
				b.jsonError(w, "Unknown role", http.StatusBadRequest)
				return
			}
			descriptor.Role = &role
		}
		if !descriptor.IsAnyFieldEdited() {
			b.jsonError(w, service.MessageNothingEdited, http.StatusBadRequest)
			return
		}

		person, err := b.personService.Edit(user.ID, index, descriptor)
		if err != nil {
			b.serviceError(w, err)
			return
		}

		// a rename may move the person in the displayed list
		b.jsonResponse(w, map[string]interface{}{
			"person":  personToResponse(0, person),
			"message": fmt.Sprintf(service.MessagePersonEdited, person.Name),
		})

	case http.MethodDelete:
		person, err := b.personService.Delete(user.ID, index)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		b.jsonResponse(w, map[string]interface{}{
			"message": fmt.Sprintf(service.MessagePersonDeleted, person.Name),
		})

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/person/{index}/events - add a weekly event
func (b *Bot) apiPersonEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := b.apiUser(w)
	if !ok {
		return
	}
	index, ok := b.pathIndex(w, r)
	if !ok {
		return
	}

	var req struct {
		Description   string  `json:"description"`
		Date          string  `json:"date"`
		Time          string  `json:"time"`
		DurationHours float64 `json:"duration_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	date, err := domain.ParseDate(req.Date)
	if err != nil {
		b.serviceError(w, err)
		return
	}
	at, err := domain.ParseTimeOfDay(req.Time)
	if err != nil {
		b.serviceError(w, err)
		return
	}
	event, err := domain.NewEvent(req.Description, date, at, req.DurationHours)
	if err != nil {
		b.serviceError(w, err)
		return
	}

	res, err := b.personService.AddEvent(user.ID, index, event)
	if err != nil {
		b.serviceError(w, err)
		return
	}

	b.jsonCreated(w, map[string]interface{}{
		"person":  personToResponse(index, res.Person),
		"event":   eventToResponse(res.Event),
		"message": res.Message,
	})
}

// GET /api/person/{index}/schedule?days=N - upcoming schedule
func (b *Bot) apiPersonSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := b.apiUser(w)
	if !ok {
		return
	}
	index, ok := b.pathIndex(w, r)
	if !ok {
		return
	}

	days := b.cfg.UpcomingDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			b.jsonError(w, "days must be a non-negative integer", http.StatusBadRequest)
			return
		}
		days = n
	}

	person, upcoming, err := b.personService.Upcoming(user.ID, index, days)
	if err != nil {
		b.serviceError(w, err)
		return
	}

	b.jsonResponse(w, ScheduleResponse{
		Person: personToResponse(index, person),
		Days:   days,
		Events: eventsToResponse(upcoming),
	})
}

// GET /api/person/{index}/ics - schedule as iCalendar
func (b *Bot) apiPersonICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := b.apiUser(w)
	if !ok {
		return
	}
	index, ok := b.pathIndex(w, r)
	if !ok {
		return
	}

	person, err := b.personService.Get(user.ID, index)
	if err != nil {
		b.serviceError(w, err)
		return
	}
	data, err := b.calendarService.ExportICS(person)
	if err != nil {
		b.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, icsFileName(person.Name)))
	w.Write(data)
}

// GET /api/free?time=HH:MM[&date=YYYY-MM-DD] - contacts free at that time
func (b *Bot) apiFree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := b.apiUser(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	at, err := domain.ParseTimeOfDay(q.Get("time"))
	if err != nil {
		b.serviceError(w, err)
		return
	}

	var date *time.Time
	if v := q.Get("date"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			b.serviceError(w, err)
			return
		}
		date = &d
	}

	res, err := b.personService.FreeSchedule(user.ID, at, date)
	if err != nil {
		b.serviceError(w, err)
		return
	}

	b.jsonResponse(w, FreeResponse{
		Date:    res.Query.Date.Format(domain.DateLayout),
		Time:    res.Query.Time.String(),
		Persons: indexedToResponse(res.Persons),
		Message: res.Message,
	})
}

// Helper: convert persons to API response; indexes follow list order
func personsToResponse(persons []*domain.Person) []PersonResponse {
	result := make([]PersonResponse, 0, len(persons))
	for i, p := range persons {
		result = append(result, personToResponse(i+1, p))
	}
	return result
}

// indexedToResponse keeps the index each person has in the full list
func indexedToResponse(persons []domain.IndexedPerson) []PersonResponse {
	result := make([]PersonResponse, 0, len(persons))
	for _, ip := range persons {
		result = append(result, personToResponse(ip.Index, ip.Person))
	}
	return result
}

func personToResponse(index int, p *domain.Person) PersonResponse {
	return PersonResponse{
		Index:   index,
		ID:      p.ID,
		Name:    p.Name,
		Role:    string(p.Role),
		Phone:   p.Phone,
		Email:   p.Email,
		Address: p.Address,
		Notes:   p.Notes,
		Tags:    p.Tags,
		Events:  p.Schedule.Len(),
	}
}

func eventsToResponse(s domain.Schedule) []EventResponse {
	result := make([]EventResponse, 0, s.Len())
	for _, e := range s.Events() {
		result = append(result, eventToResponse(e))
	}
	return result
}

func eventToResponse(e domain.Event) EventResponse {
	return EventResponse{
		Description:   e.Description(),
		Date:          e.Date().Format(domain.DateLayout),
		Time:          e.Time().String(),
		DurationHours: e.DurationHours(),
		Summary:       e.DailyScheduleFormat(),
	}
}
