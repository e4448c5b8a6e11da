package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

const testToken = "test-token"

// receivedFile is one attachment part the fake server got
type receivedFile struct {
	name     string
	mimeType string
	size     int64
}

// chatServer is a scripted chat API
type chatServer struct {
	t *testing.T

	mu           sync.Mutex
	papers       map[string]*models.Paper
	messages     map[string][]models.ChatMessage
	nextID       uint
	sendCalls    int
	listCalls    int
	lastBody     string
	lastFiles    []receivedFile
	sendStatus   int    // non-zero fails sends with this status
	sendError    string // error of a failed send
	listStatus   int    // non-zero fails message lists with this status
	paperStatus  int    // non-zero fails paper metadata with this status
	unread       response.UnreadSummaryResponse
	unreadStatus int
	gates        map[string]chan struct{} // paperID -> released before its list is served
}

func newChatServer(t *testing.T) (*chatServer, *Client) {
	s := &chatServer{
		t:        t,
		papers:   make(map[string]*models.Paper),
		messages: make(map[string][]models.ChatMessage),
		gates:    make(map[string]chan struct{}),
		nextID:   1,
		unread:   response.UnreadSummaryResponse{Success: true, UnreadSummary: []models.UnreadSummaryEntry{}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/papers/{paperId}", s.auth(s.getPaper))
	mux.HandleFunc("GET /api/chat/papers/{paperId}/messages", s.auth(s.listMessages))
	mux.HandleFunc("POST /api/chat/papers/{paperId}/messages", s.auth(s.sendMessage))
	mux.HandleFunc("GET /api/chat/unread-counts", s.auth(s.unreadCounts))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, StaticToken(testToken))
	require.NoError(t, err)
	return s, c
}

func (s *chatServer) addPaper(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.papers[id] = &models.Paper{ID: id, Title: title}
}

func (s *chatServer) addMessage(paperID, body string) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.ChatMessage{ID: s.nextID, PaperID: paperID, Body: body, SenderRole: models.RoleAdmin, CreatedAt: time.Now()}
	s.nextID++
	s.messages[paperID] = append(s.messages[paperID], msg)
	return msg
}

func (s *chatServer) gate(paperID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[paperID] = ch
	return ch
}

func (s *chatServer) sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCalls
}

func (s *chatServer) setUnread(total int64, entries ...models.UnreadSummaryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entries == nil {
		entries = []models.UnreadSummaryEntry{}
	}
	s.unread = response.UnreadSummaryResponse{Success: true, UnreadSummary: entries, TotalUnread: total}
	s.unreadStatus = 0
}

func (s *chatServer) failSends(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendStatus, s.sendError = status, message
}

func (s *chatServer) failLists(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

func (s *chatServer) failPapers(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paperStatus = status
}

func (s *chatServer) lastSend() (string, []receivedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody, append([]receivedFile(nil), s.lastFiles...)
}

func (s *chatServer) failUnread(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreadStatus = status
}

func (s *chatServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, response.ErrorResponse{Error: "invalid token", Code: "UNAUTHORIZED"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *chatServer) getPaper(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.paperStatus
	paper := s.papers[r.PathValue("paperId")]
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, response.ErrorResponse{Error: "metadata unavailable"})
		return
	}
	if paper == nil {
		writeJSON(w, http.StatusNotFound, response.ErrorResponse{Error: "paper not found", Code: "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, response.PaperResponse{Success: true, Paper: paper})
}

func (s *chatServer) listMessages(w http.ResponseWriter, r *http.Request) {
	paperID := r.PathValue("paperId")

	s.mu.Lock()
	gate := s.gates[paperID]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	s.listCalls++
	status := s.listStatus
	messages := append([]models.ChatMessage{}, s.messages[paperID]...)
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, response.ErrorResponse{Error: "database unavailable", Code: "INTERNAL_ERROR"})
		return
	}
	writeJSON(w, http.StatusOK, response.MessagesResponse{Success: true, Messages: messages})
}

func (s *chatServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	paperID := r.PathValue("paperId")
	require.NoError(s.t, r.ParseMultipartForm(32<<20))

	var files []receivedFile
	var attachments []models.ChatAttachment
	for i, fh := range r.MultipartForm.File["attachments"] {
		f, err := fh.Open()
		require.NoError(s.t, err)
		n, err := io.Copy(io.Discard, f)
		require.NoError(s.t, err)
		f.Close()

		mimeType := fh.Header.Get("Content-Type")
		files = append(files, receivedFile{name: fh.Filename, mimeType: mimeType, size: n})
		attachments = append(attachments, models.ChatAttachment{
			Position: i,
			FileName: fh.Filename,
			FileSize: n,
			FileType: attachment.Classify(mimeType),
			MimeType: mimeType,
		})
	}

	s.mu.Lock()
	s.sendCalls++
	s.lastBody = r.FormValue("message")
	s.lastFiles = files
	status, errMsg := s.sendStatus, s.sendError
	if status != 0 {
		s.mu.Unlock()
		writeJSON(w, status, response.ErrorResponse{Error: errMsg})
		return
	}
	msg := models.ChatMessage{
		ID:          s.nextID,
		PaperID:     paperID,
		Body:        strings.TrimSpace(s.lastBody),
		SenderRole:  models.RoleParticipant,
		CreatedAt:   time.Now(),
		Attachments: attachments,
	}
	s.nextID++
	s.messages[paperID] = append(s.messages[paperID], msg)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, response.ChatMessageResponse{Success: true, ChatMessage: &msg})
}

func (s *chatServer) unreadCounts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.unreadStatus
	resp := s.unread
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, response.ErrorResponse{Error: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
