// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/b2stos/nexuszap-sub000/internal/errors"
	"github.com/b2stos/nexuszap-sub000/internal/model"
	"github.com/b2stos/nexuszap-sub000/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	MessageService  *service.MessageService
	Dispatcher      *service.Dispatcher
	StallDetector   *service.StallDetector
	Health          *service.HealthReporter
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Unknown errors stay 500.
func writeError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	var invalid *appErrors.ErrInvalidTransition

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &invalid):
		status = http.StatusConflict
	case errors.Is(err, appErrors.ErrNoRecipients),
		errors.Is(err, appErrors.ErrChannelDisconnected),
		errors.Is(err, appErrors.ErrChannelBlocked),
		errors.Is(err, appErrors.ErrTemplateNotApproved),
		errors.Is(err, appErrors.ErrWindowClosed):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func urlID(r *http.Request) int {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	return id
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string      `json:"name"`
		ChannelID  int         `json:"channel_id"`
		TemplateID int         `json:"template_id"`
		Speed      model.Speed `json:"speed"`
		ContactIDs []int       `json:"contact_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(body.Name, body.ChannelID, body.TemplateID, body.Speed, body.ContactIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.GetCampaignDetailsWithStats(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) ListRecipients(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := model.RecipientStatus(r.URL.Query().Get("status"))

	recipients, pagination, err := c.CampaignService.ListRecipients(urlID(r), status, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       recipients,
		"pagination": pagination,
	})
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.Start(r.Context(), urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.Pause(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.Resume(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.Cancel(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) RetryFailed(w http.ResponseWriter, r *http.Request) {
	res, err := c.CampaignService.RetryFailed(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DispatchBatch is the operator's force-dispatch: runs one batch inline
// instead of waiting for the scheduler. The atomic claim makes this safe to
// call while ticks are firing.
func (c *CampaignController) DispatchBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed model.Speed `json:"speed,omitempty"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body) // empty body means no override
	}
	if body.Speed != "" && !body.Speed.Valid() {
		http.Error(w, "unknown speed profile", http.StatusBadRequest)
		return
	}

	result, err := c.Dispatcher.RunBatch(r.Context(), urlID(r), body.Speed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) CampaignHealth(w http.ResponseWriter, r *http.Request) {
	report, err := c.Health.Report(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *CampaignController) StalledCampaigns(w http.ResponseWriter, r *http.Request) {
	reports, err := c.StallDetector.Detect()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": reports})
}

// PersonalizedPreview renders the campaign's template with one contact's
// values, without sending anything.
func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID int `json:"contact_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res, err := c.CampaignService.GetCampaignDetailsWithStats(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	rendered, err := c.MessageService.RenderPreview(res.Campaign.TemplateID, body.ContactID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rendered_message": rendered,
		"contact_id":       body.ContactID,
	})
}

func (c *CampaignController) SendFreeform(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChannelID      int    `json:"channel_id"`
		ContactID      int    `json:"contact_id"`
		Body           string `json:"body"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Body == "" {
		http.Error(w, "body is required", http.StatusBadRequest)
		return
	}

	res, err := c.MessageService.SendFreeform(r.Context(), body.ChannelID, body.ContactID, body.Body, body.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) ContactWindow(w http.ResponseWriter, r *http.Request) {
	win, err := c.MessageService.WindowFor(urlID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}
