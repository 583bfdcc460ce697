package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/session"
)

var errSignInRequired = errors.New("sign in required")

type identityKey struct{}

type identity struct {
	userID  int64
	session *session.Session
}

// scope returns the cart scope of the request. It is only valid inside
// handlers wrapped by withIdentity.
func scope(r *http.Request) cart.Scope {
	id, _ := r.Context().Value(identityKey{}).(*identity)
	if id == nil {
		return cart.Scope{}
	}
	return cart.Scope{UserID: id.userID, Session: id.session}
}

// bearerUser returns the customer id of a valid bearer token, zero when no
// token was sent, and an error for a bad token.
func (h *Handler) bearerUser(r *http.Request) (int64, error) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		return 0, nil
	}
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return 0, errors.Wrap(errSignInRequired, "malformed authorization header")
	}
	return h.tokens.Verify(strings.TrimSpace(token))
}

// withIdentity resolves the customer and opens the visitor session. The
// session is saved before the response header goes out, so the cookie and
// the stored state always match.
func (h *Handler) withIdentity(requireUser bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := h.bearerUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if requireUser && userID == 0 {
			writeError(w, r, errSignInRequired)
			return
		}

		var sid string
		if c, err := r.Cookie(h.cookie.Name); err == nil {
			sid = c.Value
		}
		sess, err := h.sessions.Open(ctx, sid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if userID != 0 && sess.UserID != userID {
			sess.UserID = userID
			sess.MarkDirty()
		}

		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.Name,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(h.sessions.TTL().Seconds()),
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})

		sw := &sessionWriter{ResponseWriter: w, commit: func() {
			if err := h.sessions.Commit(ctx, sess); err != nil {
				zctx.From(ctx).Error("Save session", zap.String("session_id", sess.ID), zap.Error(err))
			}
		}}
		ctx = zctx.With(ctx, zap.Int64("user_id", userID))
		ctx = context.WithValue(ctx, identityKey{}, &identity{userID: userID, session: sess})
		next(sw, r.WithContext(ctx))
		sw.flushCommit()
	}
}

// sessionWriter runs commit once, right before the header is written.
type sessionWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *sessionWriter) flushCommit() {
	if !w.committed {
		w.committed = true
		w.commit()
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.flushCommit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushCommit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// withScope authorizes an admin route by API key scope. The key is read
// from the api_key header.
func (h *Handler) withScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.keys.Authorize(r.Context(), r.Header.Get("api_key"), scope)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key", info.ID))
		next(w, r.WithContext(ctx))
	}
}
