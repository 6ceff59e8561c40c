package jsonstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/musify/internal/model"
)

// recordedRequest はテストサーバーが受け取ったリクエスト。
type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
	Auth        string
}

// storeServer はリクエストを記録し、handlerで応答するテスト用RESTストア。
type storeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
	*httptest.Server
}

func newStoreServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *storeServer {
	t.Helper()
	s := &storeServer{handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Body:        string(body),
			ContentType: r.Header.Get("Content-Type"),
			Auth:        r.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		s.handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *storeServer) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.requests...)
}

type opRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (o *opRecorder) RecordStoreRequest(op, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op+":"+outcome)
}

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL+"/", nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func respondJSON(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func TestCreateAlbum_SendsExactlyOneRequest(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusCreated,
		`{"id":"a1","name":"X","artist":"Y","image":"https://res.cloudinary.com/u.jpg","songs":[]}`))
	client := newTestClient(srv.URL)
	rec := &opRecorder{}
	client.SetRecorder(rec)

	created, err := client.CreateAlbum(context.Background(), model.Album{
		Name:   "X",
		Artist: "Y",
		Image:  "U",
	})
	if err != nil {
		t.Fatalf("CreateAlbum() error = %v", err)
	}

	reqs := srv.recorded()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want exactly 1", len(reqs))
	}
	got := reqs[0]
	if got.Method != http.MethodPost || got.Path != "/albums" {
		t.Errorf("request = %s %s, want POST /albums", got.Method, got.Path)
	}
	want := `{"name":"X","artist":"Y","image":"U","songs":[]}`
	if got.Body != want {
		t.Errorf("body = %s, want %s", got.Body, want)
	}
	if got.ContentType != "application/json" {
		t.Errorf("Content-Type = %q", got.ContentType)
	}
	if got.Auth != "" {
		t.Errorf("Authorization = %q, want none", got.Auth)
	}
	if created.ID != "a1" {
		t.Errorf("created.ID = %q, want a1", created.ID)
	}
	if len(rec.ops) != 1 || rec.ops[0] != "create:success" {
		t.Errorf("recorded ops = %v", rec.ops)
	}
}

func TestListAlbums_AcceptsNumericIDs(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusOK,
		`[{"id":1,"name":"A","artist":"B","image":"i","songs":[{"id":"s1","title":"T","duration":"3:05","albumId":1}]},
		  {"id":"x2","name":"C","artist":"D","image":"j"}]`))
	client := newTestClient(srv.URL)

	albums, err := client.ListAlbums(context.Background())
	if err != nil {
		t.Fatalf("ListAlbums() error = %v", err)
	}
	if len(albums) != 2 {
		t.Fatalf("got %d albums, want 2", len(albums))
	}
	if albums[0].ID != "1" || albums[0].Songs[0].AlbumID != "1" {
		t.Errorf("numeric ids not normalized: %+v", albums[0])
	}
	if albums[0].SongCount() != 1 || albums[1].SongCount() != 0 {
		t.Errorf("song counts = %d, %d", albums[0].SongCount(), albums[1].SongCount())
	}
}

func TestGetAlbum_NotFound(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusNotFound, `{}`))
	client := newTestClient(srv.URL)

	_, err := client.GetAlbum(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAlbum() error = %v, want ErrNotFound", err)
	}
	if reqs := srv.recorded(); reqs[0].Path != "/albums/missing" {
		t.Errorf("path = %s", reqs[0].Path)
	}
}

func TestClient_Non2xxReturnsStatusError(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusInternalServerError, `boom`))
	client := newTestClient(srv.URL)
	rec := &opRecorder{}
	client.SetRecorder(rec)

	err := client.DeleteAlbum(context.Background(), "a1")

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusInternalServerError || se.Method != http.MethodDelete || se.Path != "/albums/a1" {
		t.Errorf("StatusError = %+v", se)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("500 must not be reported as not found")
	}
	if len(srv.recorded()) != 1 {
		t.Error("failed requests must not be retried")
	}
	if len(rec.ops) != 1 || rec.ops[0] != "delete:failure" {
		t.Errorf("recorded ops = %v", rec.ops)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusOK, `[]`))
	client := newTestClient(srv.URL)
	srv.Close()

	if _, err := client.ListSongs(context.Background()); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusOK, `{not json`))
	client := newTestClient(srv.URL)

	if _, err := client.ListAlbums(context.Background()); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("error = %v, want parse error", err)
	}
}

func TestPatchAlbumSongs_ReplacesSongsOnly(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusOK, `{}`))
	client := newTestClient(srv.URL)

	if err := client.PatchAlbumSongs(context.Background(), "a1", nil); err != nil {
		t.Fatalf("PatchAlbumSongs() error = %v", err)
	}

	got := srv.recorded()[0]
	if got.Method != http.MethodPatch || got.Path != "/albums/a1" {
		t.Errorf("request = %s %s", got.Method, got.Path)
	}
	if got.Body != `{"songs":[]}` {
		t.Errorf("body = %s, want {\"songs\":[]}", got.Body)
	}
}

func TestSongHelpers(t *testing.T) {
	srv := newStoreServer(t, respondJSON(http.StatusCreated, `{}`))
	client := newTestClient(srv.URL)
	ctx := context.Background()

	song := model.Song{ID: "s1", Title: "T", Duration: "3:05", AudioURL: "https://a", Thumbnail: "https://t", AlbumID: "a1", Artist: "B", AlbumName: "A"}
	if err := client.CreateSong(ctx, song); err != nil {
		t.Fatalf("CreateSong() error = %v", err)
	}
	if err := client.DeleteSong(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSong() error = %v", err)
	}

	reqs := srv.recorded()
	if reqs[0].Method != http.MethodPost || reqs[0].Path != "/songs" {
		t.Errorf("create request = %s %s", reqs[0].Method, reqs[0].Path)
	}
	wantBody := `{"id":"s1","title":"T","duration":"3:05","audioUrl":"https://a","thumbnail":"https://t","albumId":"a1","artist":"B","albumName":"A"}`
	if reqs[0].Body != wantBody {
		t.Errorf("create body = %s\nwant %s", reqs[0].Body, wantBody)
	}
	if reqs[1].Method != http.MethodDelete || reqs[1].Path != "/songs/s1" {
		t.Errorf("delete request = %s %s", reqs[1].Method, reqs[1].Path)
	}
}
