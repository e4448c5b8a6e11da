package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/welldanyogia/webrana-confchat/internal/api/middleware"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	apperrors "github.com/welldanyogia/webrana-confchat/internal/errors"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
	"github.com/welldanyogia/webrana-confchat/internal/mocks"
	"github.com/welldanyogia/webrana-confchat/internal/models"
	"github.com/welldanyogia/webrana-confchat/internal/services"
	"github.com/welldanyogia/webrana-confchat/internal/storage"
)

const testPaperID = "5f0c2d7e-8c1b-4f4e-9a57-2b9d7f3c1a10"

// ChatHandlerTestSuite is the test suite for ChatHandler
type ChatHandlerTestSuite struct {
	suite.Suite
	echo     *echo.Echo
	handler  *ChatHandler
	mockChat *mocks.MockChatService
	secLog   *bytes.Buffer
	viewer   *models.User
}

// SetupTest runs before each test
func (s *ChatHandlerTestSuite) SetupTest() {
	s.echo = echo.New()
	s.mockChat = new(mocks.MockChatService)
	s.secLog = new(bytes.Buffer)
	sec := logger.NewSecurityLoggerWithHandler(slog.NewJSONHandler(s.secLog, nil))
	s.handler = NewChatHandler(s.mockChat, sec)
	s.viewer = &models.User{ID: "author-1", Name: "Carol Author", Role: models.RoleParticipant}
}

// TearDownTest runs after each test
func (s *ChatHandlerTestSuite) TearDownTest() {
	s.mockChat.AssertExpectations(s.T())
}

// TestChatHandlerTestSuite runs the test suite
func TestChatHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(ChatHandlerTestSuite))
}

// createContext builds a request context with the viewer already authenticated
func (s *ChatHandlerTestSuite) createContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	middleware.SetViewer(c, s.viewer)
	return c, rec
}

func (s *ChatHandlerTestSuite) paperContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := s.createContext(req)
	c.SetParamNames("paperId")
	c.SetParamValues(testPaperID)
	return c, rec
}

func (s *ChatHandlerTestSuite) attachmentContext(messageID, index string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c, rec := s.createContext(req)
	c.SetParamNames("paperId", "messageId", "index")
	c.SetParamValues(testPaperID, messageID, index)
	return c, rec
}

// multipartFile is one attachment in a send request
type multipartFile struct {
	name        string
	contentType string
	content     []byte
}

func newSendRequest(s *ChatHandlerTestSuite, message string, files ...multipartFile) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	s.Require().NoError(w.WriteField(FormFieldMessage, message))
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormFieldAttachments, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		s.Require().NoError(err)
		_, err = part.Write(f.content)
		s.Require().NoError(err)
	}
	s.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func (s *ChatHandlerTestSuite) decodeError(rec *httptest.ResponseRecorder) response.ErrorResponse {
	var resp response.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ==================== UnreadCounts Tests ====================

func (s *ChatHandlerTestSuite) TestUnreadCounts_Success() {
	entries := []models.UnreadSummaryEntry{
		{PaperID: testPaperID, UnreadCount: 2},
		{PaperID: "other", UnreadCount: 1},
	}
	s.mockChat.On("UnreadSummary", mock.Anything, s.viewer).Return(entries, int64(3), nil)

	c, rec := s.createContext(httptest.NewRequest(http.MethodGet, "/api/chat/unread-counts", nil))
	s.Require().NoError(s.handler.UnreadCounts(c))

	s.Equal(http.StatusOK, rec.Code)
	var resp response.UnreadSummaryResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Success)
	s.Equal(int64(3), resp.TotalUnread)
	s.Equal(entries, resp.UnreadSummary)
}

func (s *ChatHandlerTestSuite) TestUnreadCounts_Error() {
	s.mockChat.On("UnreadSummary", mock.Anything, s.viewer).Return(nil, int64(0), fmt.Errorf("db down"))

	c, rec := s.createContext(httptest.NewRequest(http.MethodGet, "/api/chat/unread-counts", nil))
	s.Require().NoError(s.handler.UnreadCounts(c))

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("internal server error", s.decodeError(rec).Error)
}

// ==================== ListMessages Tests ====================

func (s *ChatHandlerTestSuite) TestListMessages_Success() {
	messages := []models.ChatMessage{
		{ID: 1, PaperID: testPaperID, Body: "first", SenderRole: models.RoleParticipant, CreatedAt: time.Now()},
		{ID: 2, PaperID: testPaperID, Body: "second", SenderRole: models.RoleAdmin, CreatedAt: time.Now()},
	}
	s.mockChat.On("ListMessages", mock.Anything, s.viewer, testPaperID).Return(messages, nil)

	c, rec := s.paperContext(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Require().NoError(s.handler.ListMessages(c))

	s.Equal(http.StatusOK, rec.Code)
	var resp response.MessagesResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Success)
	s.Require().Len(resp.Messages, 2)
	s.Equal("first", resp.Messages[0].Body)
	s.Equal("second", resp.Messages[1].Body)
}

func (s *ChatHandlerTestSuite) TestListMessages_Empty() {
	s.mockChat.On("ListMessages", mock.Anything, s.viewer, testPaperID).Return([]models.ChatMessage{}, nil)

	c, rec := s.paperContext(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Require().NoError(s.handler.ListMessages(c))

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"success":true,"messages":[]}`, rec.Body.String())
}

func (s *ChatHandlerTestSuite) TestListMessages_InvisiblePaper() {
	hidden := apperrors.NewAppError(apperrors.ErrForbidden, "paper not found", apperrors.CodeNotFound)
	s.mockChat.On("ListMessages", mock.Anything, s.viewer, testPaperID).Return(nil, hidden)

	c, rec := s.paperContext(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Require().NoError(s.handler.ListMessages(c))

	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("paper not found", s.decodeError(rec).Error)
	s.Contains(s.secLog.String(), "access_denied")
}

// ==================== SendMessage Tests ====================

func (s *ChatHandlerTestSuite) TestSendMessage_TextOnly() {
	created := &models.ChatMessage{ID: 9, PaperID: testPaperID, Body: "hello", SenderRole: models.RoleParticipant}
	s.mockChat.On("SendMessage", mock.Anything, s.viewer, testPaperID, "  hello  ", mock.MatchedBy(func(u []services.Upload) bool {
		return len(u) == 0
	})).Return(created, nil)

	c, rec := s.paperContext(newSendRequest(s, "  hello  "))
	s.Require().NoError(s.handler.SendMessage(c))

	s.Equal(http.StatusCreated, rec.Code)
	var resp response.ChatMessageResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Success)
	s.Equal(uint(9), resp.ChatMessage.ID)
}

func (s *ChatHandlerTestSuite) TestSendMessage_WithAttachments() {
	pdf := []byte("%PDF-1.4\nbody\n")
	png := []byte("\x89PNG\r\n\x1a\n")

	var seen []services.Upload
	s.mockChat.On("SendMessage", mock.Anything, s.viewer, testPaperID, "Please review section 3", mock.Anything).
		Run(func(args mock.Arguments) {
			seen = args.Get(4).([]services.Upload)
		}).
		Return(&models.ChatMessage{ID: 10, PaperID: testPaperID}, nil)

	req := newSendRequest(s, "Please review section 3",
		multipartFile{name: "paper.pdf", contentType: "application/pdf", content: pdf},
		multipartFile{name: "figure.png", contentType: "image/png", content: png},
	)
	c, rec := s.paperContext(req)
	s.Require().NoError(s.handler.SendMessage(c))

	s.Equal(http.StatusCreated, rec.Code)
	s.Require().Len(seen, 2)
	s.Equal("paper.pdf", seen[0].FileName)
	s.Equal("application/pdf", seen[0].MIMEType)
	s.Equal(int64(len(pdf)), seen[0].Size)
	s.Equal("figure.png", seen[1].FileName)
}

func (s *ChatHandlerTestSuite) TestSendMessage_UploadContentReadable() {
	pdf := []byte("%PDF-1.4\nbody\n")

	var content []byte
	s.mockChat.On("SendMessage", mock.Anything, s.viewer, testPaperID, "", mock.Anything).
		Run(func(args mock.Arguments) {
			uploads := args.Get(4).([]services.Upload)
			rc, err := uploads[0].Open()
			s.Require().NoError(err)
			defer rc.Close()
			content, err = io.ReadAll(rc)
			s.Require().NoError(err)
		}).
		Return(&models.ChatMessage{ID: 11}, nil)

	c, _ := s.paperContext(newSendRequest(s, "", multipartFile{name: "paper.pdf", contentType: "application/pdf", content: pdf}))
	s.Require().NoError(s.handler.SendMessage(c))

	s.Equal(pdf, content)
}

func (s *ChatHandlerTestSuite) TestSendMessage_FormEncoded() {
	s.mockChat.On("SendMessage", mock.Anything, s.viewer, testPaperID, "hello", mock.Anything).
		Return(&models.ChatMessage{ID: 12}, nil)

	form := url.Values{FormFieldMessage: {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	c, rec := s.paperContext(req)
	s.Require().NoError(s.handler.SendMessage(c))
	s.Equal(http.StatusCreated, rec.Code)
}

func (s *ChatHandlerTestSuite) TestSendMessage_Rejections() {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "empty message",
			err:        apperrors.ErrEmptyMessage,
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeEmptyMessage,
			wantError:  apperrors.ErrEmptyMessage.Error(),
		},
		{
			name:       "too many files",
			err:        apperrors.NewAppError(attachment.ErrTooManyFiles, attachment.TooManyFilesMessage, apperrors.CodeTooManyFiles),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeTooManyFiles,
			wantError:  "Maximum 5 files allowed per message",
		},
		{
			name:       "type not allowed",
			err:        &attachment.FileError{FileName: "notes.exe", Err: attachment.ErrTypeNotAllowed},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeFileTypeBlocked,
			wantError:  "notes.exe: file type not allowed. Only images and PDFs are accepted",
		},
		{
			name:       "file too large",
			err:        &attachment.FileError{FileName: "poster.png", Err: attachment.ErrFileTooLarge},
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeFileTooLarge,
			wantError:  "poster.png: file exceeds 5MB limit",
		},
		{
			name:       "invisible paper",
			err:        apperrors.NewAppError(apperrors.ErrForbidden, "paper not found", apperrors.CodeNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   apperrors.CodeNotFound,
			wantError:  "paper not found",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			s.mockChat.On("SendMessage", mock.Anything, s.viewer, testPaperID, "x", mock.Anything).Return(nil, tt.err)

			c, rec := s.paperContext(newSendRequest(s, "x"))
			s.Require().NoError(s.handler.SendMessage(c))

			s.Equal(tt.wantStatus, rec.Code)
			resp := s.decodeError(rec)
			s.False(resp.Success)
			s.Equal(tt.wantCode, resp.Code)
			s.Equal(tt.wantError, resp.Error)
		})
	}
}

func (s *ChatHandlerTestSuite) TestSendMessage_BlockedUploadIsLogged() {
	s.mockChat.On("SendMessage", mock.Anything, s.viewer, testPaperID, "", mock.Anything).
		Return(nil, &attachment.FileError{FileName: "notes.exe", Err: attachment.ErrTypeNotAllowed})

	c, _ := s.paperContext(newSendRequest(s, "", multipartFile{name: "notes.exe", contentType: "application/x-msdownload", content: []byte("MZ")}))
	s.Require().NoError(s.handler.SendMessage(c))

	s.Contains(s.secLog.String(), "blocked_upload")
	s.Contains(s.secLog.String(), "notes.exe")
}

func (s *ChatHandlerTestSuite) TestSendMessage_MalformedMultipart() {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("--broken\r\n"))
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=missing")

	c, rec := s.paperContext(req)
	s.Require().NoError(s.handler.SendMessage(c))

	s.Equal(http.StatusBadRequest, rec.Code)
	s.mockChat.AssertNumberOfCalls(s.T(), "SendMessage", 0)
}

// ==================== Attachment Tests ====================

func (s *ChatHandlerTestSuite) TestViewAttachment_Inline() {
	att := &models.ChatAttachment{Position: 0, FileName: "figure.png", FileSize: 4, MimeType: "image/png"}
	s.mockChat.On("OpenAttachment", mock.Anything, s.viewer, testPaperID, uint(5), 0).
		Return(att, io.NopCloser(strings.NewReader("data")), nil)

	c, rec := s.attachmentContext("5", "0")
	s.Require().NoError(s.handler.ViewAttachment(c))

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("image/png", rec.Header().Get(echo.HeaderContentType))
	s.Equal(`inline; filename=figure.png`, rec.Header().Get(echo.HeaderContentDisposition))
	s.Equal("4", rec.Header().Get(echo.HeaderContentLength))
	s.Equal("data", rec.Body.String())
}

func (s *ChatHandlerTestSuite) TestDownloadAttachment_Disposition() {
	att := &models.ChatAttachment{Position: 1, FileName: "camera ready.pdf", FileSize: 3, MimeType: "application/pdf"}
	s.mockChat.On("OpenAttachment", mock.Anything, s.viewer, testPaperID, uint(5), 1).
		Return(att, io.NopCloser(strings.NewReader("pdf")), nil)

	c, rec := s.attachmentContext("5", "1")
	s.Require().NoError(s.handler.DownloadAttachment(c))

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/pdf", rec.Header().Get(echo.HeaderContentType))
	s.Equal(`attachment; filename="camera ready.pdf"`, rec.Header().Get(echo.HeaderContentDisposition))
	s.Equal("pdf", rec.Body.String())
}

func (s *ChatHandlerTestSuite) TestAttachment_BadParams() {
	for _, params := range [][2]string{{"abc", "0"}, {"5", "x"}, {"-1", "0"}} {
		c, rec := s.attachmentContext(params[0], params[1])
		s.Require().NoError(s.handler.ViewAttachment(c))
		s.Equal(http.StatusNotFound, rec.Code, params)
	}
	s.mockChat.AssertNumberOfCalls(s.T(), "OpenAttachment", 0)
}

func (s *ChatHandlerTestSuite) TestAttachment_NotFound() {
	s.mockChat.On("OpenAttachment", mock.Anything, s.viewer, testPaperID, uint(5), 3).
		Return(nil, nil, apperrors.ErrAttachmentNotFound)

	c, rec := s.attachmentContext("5", "3")
	s.Require().NoError(s.handler.DownloadAttachment(c))

	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(apperrors.CodeNotFound, s.decodeError(rec).Code)
}

func (s *ChatHandlerTestSuite) TestAttachment_StorageEscapeIsLogged() {
	escape := fmt.Errorf("failed to open attachment: %w", storage.ErrPathTraversal)
	s.mockChat.On("OpenAttachment", mock.Anything, s.viewer, testPaperID, uint(5), 0).
		Return(nil, nil, escape)

	c, rec := s.attachmentContext("5", "0")
	s.Require().NoError(s.handler.ViewAttachment(c))

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "path traversal")
	s.Contains(s.secLog.String(), `"event_type":"path_traversal"`)
	s.Contains(s.secLog.String(), `"user_id":"author-1"`)
}
