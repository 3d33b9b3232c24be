package uma

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/uma/session"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"

	svc "github.com/dropDatabas3/ticketgate/internal/http/services/uma"
)

const sessionCookie = "uma_gathering_session"

// GatheringController maneja el endpoint interactivo de claims gathering.
// GET configura la sesión; POST registra el resultado del paso actual.
type GatheringController struct {
	service svc.GatheringService
}

func NewGatheringController(s svc.GatheringService) *GatheringController {
	return &GatheringController{service: s}
}

// Start handles GET /uma/gathering
func (c *GatheringController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("uma.gathering.start"))

	q := r.URL.Query()
	sid := c.sessionID(w, r)

	sess, err := c.service.Start(ctx, svc.GatheringStartRequest{
		SessionID:         sid,
		ClientID:          strings.TrimSpace(q.Get("client_id")),
		Ticket:            strings.TrimSpace(q.Get("ticket")),
		ClaimsRedirectURI: strings.TrimSpace(q.Get("claims_redirect_uri")),
		State:             q.Get("state"),
	})
	if err != nil {
		log.Warn("gathering start rejected", logger.Err(err))
		c.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{SessionID: sess.ID, Step: sess.Step})
}

// Submit handles POST /uma/gathering
// Los campos del form que no son de control se toman como claims del paso.
func (c *GatheringController) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("uma.gathering.submit"))

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	sid := c.sessionID(w, r)
	passed := r.PostForm.Get("passed") != "false"
	done := r.PostForm.Get("done") == "true"

	stepClaims := make(map[string]any)
	for k, vs := range r.PostForm {
		switch k {
		case "passed", "done", "session_id":
			continue
		}
		if len(vs) > 0 {
			stepClaims[k] = vs[0]
		}
	}

	res, err := c.service.Advance(ctx, sid, stepClaims, passed, done)
	if err != nil {
		log.Warn("gathering step rejected", logger.SessionID(sid), logger.Err(err))
		c.handleError(w, err)
		return
	}
	if res.Done {
		http.Redirect(w, r, res.RedirectTo, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{SessionID: res.Session.ID, Step: res.Session.Step})
}

// Reset handles POST /uma/gathering/reset
func (c *GatheringController) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}
	step, err := strconv.Atoi(r.PostForm.Get("step"))
	if err != nil || step < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "step must be a positive integer")
		return
	}

	sess, err := c.service.Reset(ctx, c.sessionID(w, r), step)
	if err != nil {
		c.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{SessionID: sess.ID, Step: sess.Step})
}

type stepResponse struct {
	SessionID string `json:"session_id"`
	Step      int    `json:"step"`
}

// sessionID saca el id de la cookie (o del form) y crea uno nuevo si no hay.
func (c *GatheringController) sessionID(w http.ResponseWriter, r *http.Request) string {
	if ck, err := r.Cookie(sessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	if r.PostForm != nil {
		if sid := r.PostForm.Get("session_id"); sid != "" {
			return sid
		}
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/uma/gathering",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func (c *GatheringController) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "invalid_session", "Gathering session not found or expired")
	case errors.Is(err, session.ErrNoPCT):
		writeError(w, http.StatusBadRequest, "invalid_ticket", "Ticket permissions carry no PCT binding")
	default:
		writeError(w, umaerr.Status(err), umaerr.Code(err), err.Error())
	}
}
