package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/app"
	"github.com/softwerkskammer/Agora-sub000/internal/events"
	"github.com/softwerkskammer/Agora-sub000/internal/member"
	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
	"github.com/softwerkskammer/Agora-sub000/internal/registration"
	"github.com/softwerkskammer/Agora-sub000/internal/socrates"
	"github.com/softwerkskammer/Agora-sub000/internal/waitinglist"
)

// Config for the HTTP API handler.
type Config struct {
	App      *app.App
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflicting_versions"`
	Message string         `json:"message" example:"the activity was changed concurrently, please retry"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Agora API.
func New(cfg Config) (http.Handler, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("server needs an app")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.App.Log))
	hcfg := huma.DefaultConfig("Agora API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	a := cfg.App
	registerDocs(router, basePath)
	registerHealth(group)
	registerActivities(group, a)
	registerRegistrations(group, a)
	registerMembers(group, a)
	registerWaitinglist(group, a)
	registerSocrates(group, a)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			evt := log.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				evt = log.Error()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrConflictingVersions),
		errors.Is(err, events.ErrStreamAdvanced):
		return newAPIError(http.StatusConflict, "conflicting_versions", "the data was changed concurrently, please retry", nil)
	case errors.Is(err, registration.ErrActivityNotFound),
		errors.Is(err, registration.ErrResourceNotFound),
		errors.Is(err, waitinglist.ErrUnknownMember):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, registration.ErrNotAllowed):
		return newAPIError(http.StatusUnprocessableEntity, "not_allowed", err.Error(), nil)
	case errors.Is(err, persistence.ErrMissingID),
		errors.Is(err, activity.ErrTitleRequired),
		errors.Is(err, activity.ErrStartAfterEnd),
		errors.Is(err, activity.ErrNoResources):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	if lowered := strings.ToLower(msg); strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Agora API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerActivities(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Filter string   `query:"filter" enum:"upcoming,past,all" default:"upcoming"`
		Groups []string `query:"group"`
	}) (*struct {
		Body []ActivityResponse `json:"body"`
	}, error) {
		now := a.Registration.Now()
		var (
			list []*activity.Activity
			err  error
		)
		switch {
		case len(input.Groups) > 0:
			list, err = a.Activities.UpcomingActivitiesForGroupIDs(ctx, input.Groups, now)
		case input.Filter == "past":
			list, err = a.Activities.PastActivities(ctx, now)
		case input.Filter == "all":
			list, err = a.Activities.AllActivities(ctx)
		default:
			list, err = a.Activities.UpcomingActivities(ctx, now)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActivityResponse `json:"body"`
		}{Body: activityResponses(list, a.Location)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-activity",
		Method:      http.MethodPost,
		Path:        "/activities",
		Summary:     "Create activity",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		act := activity.New()
		if len(input.Body.Resources) > 0 {
			act = activity.NewEmpty()
		}
		act.FillFromUI(input.Body.form(), a.Location)
		act.SetOwner(input.Body.Owner)
		if err := act.Validate(); err != nil {
			return nil, handleError(err)
		}
		existing, err := a.Activities.GetActivity(ctx, act.URL())
		if err != nil {
			return nil, handleError(err)
		}
		if existing != nil {
			return nil, newAPIError(http.StatusConflict, "url_taken", "url already in use", map[string]any{"url": act.URL()})
		}
		if err := a.Activities.SaveActivity(ctx, act); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(act, a.Location)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{url}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		URL string `path:"url"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		act, err := loadActivity(ctx, a, input.URL)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(act, a.Location)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-activity",
		Method:      http.MethodPut,
		Path:        "/activities/{url}",
		Summary:     "Update activity from a form snapshot",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		URL  string          `path:"url"`
		Body ActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		act, err := loadActivity(ctx, a, input.URL)
		if err != nil {
			return nil, err
		}
		form := input.Body.form()
		if form.URL == "" {
			form.URL = act.URL()
		}
		act.FillFromUI(form, a.Location)
		if err := act.Validate(); err != nil {
			return nil, handleError(err)
		}
		if err := a.Activities.SaveActivity(ctx, act); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(act, a.Location)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clone-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{url}/clone",
		Summary:     "Template for a copy of the activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		URL string `path:"url"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		act, err := loadActivity(ctx, a, input.URL)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(act.ResetForClone(), a.Location)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-participants",
		Method:      http.MethodGet,
		Path:        "/activities/{url}/resources/{resource}/participants",
		Summary:     "Registered members of a resource",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		URL      string `path:"url"`
		Resource string `path:"resource"`
	}) (*struct {
		Body []ParticipantResponse `json:"body"`
	}, error) {
		act, err := loadActivity(ctx, a, input.URL)
		if err != nil {
			return nil, err
		}
		if act.ResourceNamed(input.Resource) == nil {
			return nil, handleError(registration.ErrResourceNotFound)
		}
		members, err := a.Members.ByIDs(ctx, act.AllRegisteredMembers())
		if err != nil {
			return nil, handleError(err)
		}
		act.SetParticipants(members)
		out := []ParticipantResponse{}
		for _, p := range act.ParticipantsOf(input.Resource) {
			out = append(out, ParticipantResponse{MemberResponse: memberResponse(p.Member), RegisteredAt: p.RegisteredAt})
		}
		return &struct {
			Body []ParticipantResponse `json:"body"`
		}{Body: out}, nil
	})
}

type ParticipantResponse struct {
	MemberResponse
	RegisteredAt time.Time `json:"registered_at"`
}

func loadActivity(ctx context.Context, a *app.App, url string) (*activity.Activity, error) {
	act, err := a.Activities.GetActivity(ctx, url)
	if err != nil {
		return nil, handleError(err)
	}
	if act == nil {
		return nil, handleError(registration.ErrActivityNotFound)
	}
	return act, nil
}

type registrationOutput struct {
	Body registration.Result `json:"body"`
}

func registerRegistrations(api huma.API, a *app.App) {
	errs := []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity}

	huma.Register(api, huma.Operation{
		OperationID: "get-registration-state",
		Method:      http.MethodGet,
		Path:        "/activities/{url}/resources/{resource}/state",
		Summary:     "Registration state of a member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		URL      string `path:"url"`
		Resource string `path:"resource"`
		MemberID string `query:"member_id"`
	}) (*struct {
		Body StateResponse `json:"body"`
	}, error) {
		act, err := loadActivity(ctx, a, input.URL)
		if err != nil {
			return nil, err
		}
		r := act.ResourceNamed(input.Resource)
		if r == nil {
			return nil, handleError(registration.ErrResourceNotFound)
		}
		return &struct {
			Body StateResponse `json:"body"`
		}{Body: StateResponse{URL: act.URL(), Resource: input.Resource, MemberID: input.MemberID, State: r.RegistrationStateFor(input.MemberID)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-registration",
		Method:      http.MethodPost,
		Path:        "/activities/{url}/resources/{resource}/registrations",
		Summary:     "Register a member",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		URL      string        `path:"url"`
		Resource string        `path:"resource"`
		Body     MemberRequest `json:"body"`
	}) (*registrationOutput, error) {
		res, err := a.Registration.AddVisitorTo(ctx, input.Body.MemberID, input.URL, input.Resource)
		if err != nil {
			return nil, handleError(err)
		}
		return &registrationOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-registration",
		Method:      http.MethodDelete,
		Path:        "/activities/{url}/resources/{resource}/registrations/{member_id}",
		Summary:     "Deregister a member",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		URL      string `path:"url"`
		Resource string `path:"resource"`
		MemberID string `path:"member_id"`
	}) (*registrationOutput, error) {
		res, err := a.Registration.RemoveVisitorFrom(ctx, input.MemberID, input.URL, input.Resource)
		if err != nil {
			return nil, handleError(err)
		}
		return &registrationOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-to-waitinglist",
		Method:      http.MethodPost,
		Path:        "/activities/{url}/resources/{resource}/waitinglist",
		Summary:     "Put a member on the waitinglist",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		URL      string        `path:"url"`
		Resource string        `path:"resource"`
		Body     MemberRequest `json:"body"`
	}) (*registrationOutput, error) {
		res, err := a.Registration.AddToWaitinglist(ctx, input.Body.MemberID, input.URL, input.Resource)
		if err != nil {
			return nil, handleError(err)
		}
		return &registrationOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-from-waitinglist",
		Method:      http.MethodDelete,
		Path:        "/activities/{url}/resources/{resource}/waitinglist/{member_id}",
		Summary:     "Take a member off the waitinglist",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		URL      string `path:"url"`
		Resource string `path:"resource"`
		MemberID string `path:"member_id"`
	}) (*registrationOutput, error) {
		res, err := a.Registration.RemoveFromWaitinglist(ctx, input.MemberID, input.URL, input.Resource)
		if err != nil {
			return nil, handleError(err)
		}
		return &registrationOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-registration-validity",
		Method:      http.MethodPut,
		Path:        "/activities/{url}/resources/{resource}/waitinglist/{member_id}/validity",
		Summary:     "Give a waiting member a window to register",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		URL      string          `path:"url"`
		Resource string          `path:"resource"`
		MemberID string          `path:"member_id"`
		Body     ValidityRequest `json:"body"`
	}) (*registrationOutput, error) {
		res, err := a.Registration.SetRegistrationValidity(ctx, input.MemberID, input.URL, input.Resource, input.Body.Hours)
		if err != nil {
			return nil, handleError(err)
		}
		return &registrationOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-addon",
		Method:      http.MethodGet,
		Path:        "/activities/{url}/addons/{member_id}",
		Summary:     "Addon answers of a member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		URL      string `path:"url"`
		MemberID string `path:"member_id"`
	}) (*struct {
		Body AddonResponse `json:"body"`
	}, error) {
		act, err := loadActivity(ctx, a, input.URL)
		if err != nil {
			return nil, err
		}
		addon, answered := act.AddonForMember(input.MemberID)
		return &struct {
			Body AddonResponse `json:"body"`
		}{Body: addonResponse(act.URL(), input.MemberID, addon, answered, act.Version())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fill-addon",
		Method:      http.MethodPut,
		Path:        "/activities/{url}/addons/{member_id}",
		Summary:     "Store the addon answers of a participant",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		URL      string       `path:"url"`
		MemberID string       `path:"member_id"`
		Body     AddonRequest `json:"body"`
	}) (*struct {
		Body AddonResponse `json:"body"`
	}, error) {
		res, err := a.Registration.FillAddon(ctx, input.MemberID, input.URL, input.Body.addon())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AddonResponse `json:"body"`
		}{Body: addonResponse(res.URL, res.MemberID, res.Addon, true, res.Version)}, nil
	})
}

func registerMembers(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		list, err := a.Members.All(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]MemberResponse, 0, len(list))
		for _, m := range list {
			out = append(out, memberResponse(m))
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-member",
		Method:      http.MethodPost,
		Path:        "/members",
		Summary:     "Create member",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateMemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		existing, err := a.Members.ByNickname(ctx, input.Body.Nickname)
		if err != nil {
			return nil, handleError(err)
		}
		if existing != nil {
			return nil, newAPIError(http.StatusConflict, "nickname_taken", "nickname already in use", nil)
		}
		m := member.Member{Nickname: input.Body.Nickname, FirstName: input.Body.FirstName, LastName: input.Body.LastName, Email: input.Body.Email}
		if err := a.Members.Save(ctx, &m); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})
}

func registerWaitinglist(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-waitinglist",
		Method:      http.MethodGet,
		Path:        "/waitinglist",
		Summary:     "List waitinglist entries",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WaitinglistResponse `json:"body"`
	}, error) {
		entries, err := a.Waitinglist.Waitinglist(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]WaitinglistResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, waitinglistResponse(e))
		}
		return &struct {
			Body []WaitinglistResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-waitinglist-entry",
		Method:      http.MethodPost,
		Path:        "/waitinglist",
		Summary:     "Add a waitinglist entry for a member nickname",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body WaitinglistEntryRequest `json:"body"`
	}) (*struct {
		Body WaitinglistResponse `json:"body"`
	}, error) {
		e, err := a.Waitinglist.SaveWaitinglistEntry(ctx, input.Body.Nickname, input.Body.ActivityURL, input.Body.Resource)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WaitinglistResponse `json:"body"`
		}{Body: waitinglistResponse(e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "can-subscribe",
		Method:      http.MethodGet,
		Path:        "/waitinglist/can-subscribe",
		Summary:     "Whether a waiting member may register now",
	}, func(ctx context.Context, input *struct {
		MemberID    string `query:"member_id"`
		ActivityURL string `query:"activity_url"`
		Resource    string `query:"resource"`
	}) (*struct {
		Body CanSubscribeResponse `json:"body"`
	}, error) {
		ok, err := a.Waitinglist.CanSubscribe(ctx, input.MemberID, input.ActivityURL, input.Resource)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CanSubscribeResponse `json:"body"`
		}{Body: CanSubscribeResponse{CanSubscribe: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-waitinglist-validity",
		Method:      http.MethodPut,
		Path:        "/waitinglist/validity",
		Summary:     "Set the registration window of a waitinglist entry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body WaitinglistValidityRequest `json:"body"`
	}) (*struct {
		Body WaitinglistResponse `json:"body"`
	}, error) {
		e, err := a.Waitinglist.SetRegistrationValidity(ctx, input.Body.MemberID, input.Body.ActivityURL, input.Body.Resource, input.Body.Hours)
		if err != nil {
			return nil, handleError(err)
		}
		if e == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no waitinglist entry", nil)
		}
		return &struct {
			Body WaitinglistResponse `json:"body"`
		}{Body: waitinglistResponse(*e)}, nil
	})
}

func registerSocrates(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "socrates-reserve",
		Method:      http.MethodPost,
		Path:        "/socrates/reservations",
		Summary:     "Issue a reservation; rejections come back as events",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SocratesRequest `json:"body"`
	}) (*struct {
		Body SocratesEventResponse `json:"body"`
	}, error) {
		if input.Body.RoomType == "" || input.Body.SessionID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "room_type and session_id are required", nil)
		}
		e, err := a.Socrates.IssueReservation(ctx, input.Body.RoomType, input.Body.SessionID, input.Body.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SocratesEventResponse `json:"body"`
		}{Body: socratesEventResponse(e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "socrates-register",
		Method:      http.MethodPost,
		Path:        "/socrates/registrations",
		Summary:     "Register a participant; rejections come back as events",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SocratesRequest `json:"body"`
	}) (*struct {
		Body SocratesEventResponse `json:"body"`
	}, error) {
		if input.Body.RoomType == "" || input.Body.SessionID == "" || input.Body.MemberID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "room_type, session_id and member_id are required", nil)
		}
		e, err := a.Socrates.RegisterParticipant(ctx, input.Body.RoomType, input.Body.SessionID, input.Body.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SocratesEventResponse `json:"body"`
		}{Body: socratesEventResponse(e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "socrates-views",
		Method:      http.MethodGet,
		Path:        "/socrates/rooms/{room_type}",
		Summary:     "Reservations and registrations of a room type",
	}, func(ctx context.Context, input *struct {
		RoomType string `path:"room_type"`
	}) (*struct {
		Body []socrates.View `json:"body"`
	}, error) {
		views, err := a.Socrates.Views(ctx, input.RoomType)
		if err != nil {
			return nil, handleError(err)
		}
		if views == nil {
			views = []socrates.View{}
		}
		return &struct {
			Body []socrates.View `json:"body"`
		}{Body: views}, nil
	})
}
