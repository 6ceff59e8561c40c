package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/musify/internal/access"
	"github.com/hitoshi/musify/internal/model"
)

// fakeViews はガードが描画した画面を記録する。
type fakeViews struct {
	pending int
	denied  int
}

func (f *fakeViews) Pending(w http.ResponseWriter, r *http.Request) {
	f.pending++
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Loading..."))
}

func (f *fakeViews) Denied(w http.ResponseWriter, r *http.Request) {
	f.denied++
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`<a href="/landing">Go to Home</a>`))
}

type guardRecorder struct {
	states []string
}

func (g *guardRecorder) RecordGuardDecision(state string) {
	g.states = append(g.states, state)
}

const protectedBody = "<section>protected dashboard</section>"

// recがnilの場合は記録先なしでガードを構成する。
func serveGuarded(t *testing.T, s model.Session, views *fakeViews, rec GuardRecorder) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := NewGuardMiddleware(access.NewPolicy("admin@x.com"), views, rec)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.Write([]byte(protectedBody))
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(ContextWithSession(req.Context(), s))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, called
}

func TestGuardMiddleware_States(t *testing.T) {
	tests := []struct {
		name         string
		session      model.Session
		wantStatus   int
		wantLocation string
		wantCalled   bool
		wantPending  int
		wantDenied   int
		wantState    string
	}{
		{
			name:        "pending shows placeholder only",
			session:     model.Session{Loading: true},
			wantStatus:  http.StatusOK,
			wantPending: 1,
			wantState:   "pending",
		},
		{
			name:         "unauthenticated redirects to login",
			session:      model.Session{},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login",
			wantState:    "unauthenticated",
		},
		{
			name:       "non admin is denied",
			session:    model.Session{Identity: userIdentity},
			wantStatus: http.StatusForbidden,
			wantDenied: 1,
			wantState:  "denied",
		},
		{
			name:       "admin is allowed",
			session:    model.Session{Identity: adminIdentity},
			wantStatus: http.StatusOK,
			wantCalled: true,
			wantState:  "allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views := &fakeViews{}
			rec := &guardRecorder{}
			w, called := serveGuarded(t, tt.session, views, rec)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
			if called != tt.wantCalled {
				t.Errorf("protected handler called = %v, want %v", called, tt.wantCalled)
			}
			if views.pending != tt.wantPending || views.denied != tt.wantDenied {
				t.Errorf("views = %+v, want pending=%d denied=%d", views, tt.wantPending, tt.wantDenied)
			}
			if len(rec.states) != 1 || rec.states[0] != tt.wantState {
				t.Errorf("recorded states = %v, want [%s]", rec.states, tt.wantState)
			}
		})
	}
}

func TestGuardMiddleware_PendingIsIdempotent(t *testing.T) {
	views := &fakeViews{}
	var bodies []string
	for i := 0; i < 3; i++ {
		w, called := serveGuarded(t, model.Session{Loading: true}, views, nil)
		if called {
			t.Fatal("protected content rendered while pending")
		}
		if w.Header().Get("Location") != "" {
			t.Fatal("pending must not redirect")
		}
		bodies = append(bodies, w.Body.String())
	}
	if views.pending != 3 {
		t.Errorf("pending renders = %d, want 3", views.pending)
	}
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("render %d differs: %q vs %q", i, bodies[i], bodies[0])
		}
	}
}

func TestGuardMiddleware_AllowedRendersChildrenUnmodified(t *testing.T) {
	w, _ := serveGuarded(t, model.Session{Identity: adminIdentity}, &fakeViews{}, nil)
	if w.Body.String() != protectedBody {
		t.Errorf("body = %q, want exactly %q", w.Body.String(), protectedBody)
	}
}

func TestGuardMiddleware_NilCheckerDeniesEveryone(t *testing.T) {
	views := &fakeViews{}
	handler := NewGuardMiddleware(nil, views, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be called without a checker")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(ContextWithSession(req.Context(), model.Session{Identity: adminIdentity}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if views.denied != 1 {
		t.Errorf("denied renders = %d, want 1", views.denied)
	}
}
