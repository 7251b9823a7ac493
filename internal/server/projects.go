package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"spms/internal/domain"
	"spms/internal/engine"
	"spms/internal/repo"
)

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status         string `query:"status"`
		BusinessAreaID string `query:"business_area_id"`
		Member         string `query:"member" doc:"Only projects this user belongs to"`
		Limit          int    `query:"limit" default:"50"`
		Cursor         string `query:"cursor"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
			Status:         input.Status,
			BusinessAreaID: input.BusinessAreaID,
			MemberID:       input.Member,
			Limit:          limit + 1,
			CursorCreated:  cursorCreated,
			CursorID:       cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProjects{Items: []domain.Project{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:              input.Body.ID,
			Title:           input.Body.Title,
			Kind:            input.Body.Kind,
			BusinessAreaID:  input.Body.BusinessAreaID,
			LeadID:          input.Body.LeadID,
			InitialDocument: domain.DocumentKind(input.Body.InitialDocument),
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, nil, input.ProjectID)
		if err != nil {
			return nil, handleError(fmt.Errorf("project %s: %w", input.ProjectID, err))
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-status",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/status",
		Summary:     "Set project status (administrators only)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      SetProjectStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetProjectStatus(ctx, input.ProjectID, domain.ProjectStatus(input.Body.Status), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Edit project title or business area",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:             input.ProjectID,
			Title:          input.Body.Title,
			BusinessAreaID: input.Body.BusinessAreaID,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.ProjectMember `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, nil, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		members, err := e.Repo.ListProjectMembers(ctx, nil, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectMember `json:"body"`
		}{Body: nonNilSlice(members)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-project-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add or change a project member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectMember `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddProjectMember(ctx, input.ProjectID, input.Body.UserID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-project-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Remove a project member",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveProjectMember(ctx, input.ProjectID, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-me",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/me",
		Summary:     "Roles of the current user on a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.ActorContext `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, nil, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		ac, err := e.ActorContext(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		ac.Roles = nonNilSlice(ac.Roles)
		return &struct {
			Body engine.ActorContext `json:"body"`
		}{Body: ac}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-recipients",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/recipients",
		Summary:     "Who would be notified for this project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Recipients `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, nil, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		rec, err := e.Repo.LoadRecipients(ctx, nil, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		rec.Directorate = nonNilSlice(rec.Directorate)
		return &struct {
			Body domain.Recipients `json:"body"`
		}{Body: rec}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	loadDocument := func(ctx context.Context, projectID, documentID string) (domain.Document, huma.StatusError) {
		d, err := e.Repo.GetDocument(ctx, documentID)
		if err != nil {
			return domain.Document{}, handleError(fmt.Errorf("document %s: %w", documentID, err))
		}
		if d.ProjectID != projectID {
			return domain.Document{}, newAPIError(http.StatusNotFound, "not_found", fmt.Sprintf("document %s not found in project %s", documentID, projectID), nil)
		}
		return d, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/documents",
		Summary:     "List project documents",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID      string `path:"project_id"`
		Kind           string `query:"kind"`
		Stage          int    `query:"stage" minimum:"0" maximum:"4"`
		ApprovalStatus string `query:"approval_status"`
		Limit          int    `query:"limit" default:"50"`
		Cursor         string `query:"cursor"`
	}) (*struct {
		Body paginatedDocuments `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, nil, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListDocuments(ctx, repo.DocumentFilters{
			ProjectID:      input.ProjectID,
			Kind:           input.Kind,
			Stage:          input.Stage,
			ApprovalStatus: input.ApprovalStatus,
			Limit:          limit + 1,
			CursorCreated:  cursorCreated,
			CursorID:       cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedDocuments{Items: []domain.Document{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedDocuments `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-document",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/documents",
		Summary:       "Start a document at the lead stage",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      CreateDocumentRequest `json:"body"`
	}) (*struct {
		Body domain.Document `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, err := domain.ParseDocumentKind(input.Body.Kind)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		d, err := e.CreateDocument(ctx, input.ProjectID, kind, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Document `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/documents/{document_id}",
		Summary:     "Get document",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		DocumentID string `path:"document_id"`
	}) (*struct {
		Body domain.Document `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d, se := loadDocument(ctx, input.ProjectID, input.DocumentID)
		if se != nil {
			return nil, se
		}
		return &struct {
			Body domain.Document `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-document-feedback",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/documents/{document_id}/feedback",
		Summary:     "List reviewer feedback on a document",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		DocumentID string `path:"document_id"`
	}) (*struct {
		Body []domain.Feedback `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, se := loadDocument(ctx, input.ProjectID, input.DocumentID); se != nil {
			return nil, se
		}
		items, err := e.Repo.ListFeedback(ctx, input.DocumentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Feedback `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "document-action",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/documents/{document_id}/actions",
		Summary:     "Approve, recall, send back or reopen a document",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string                `path:"project_id"`
		DocumentID string                `path:"document_id"`
		Body       DocumentActionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		action, err := domain.ParseAction(input.Body.Action)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		var kind domain.DocumentKind
		if input.Body.Kind != "" {
			if kind, err = domain.ParseDocumentKind(input.Body.Kind); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
		}
		send := true
		if input.Body.ShouldSendEmail != nil {
			send = *input.Body.ShouldSendEmail
		}
		res, err := e.Transition(ctx, engine.TransitionRequest{
			ProjectID:       input.ProjectID,
			DocumentID:      input.DocumentID,
			Kind:            kind,
			Stage:           domain.Stage(input.Body.Stage),
			Version:         input.Body.Version,
			Action:          action,
			ActorID:         actorID,
			ShouldSendEmail: send,
			FeedbackHTML:    input.Body.FeedbackHTML,
		})
		if err != nil {
			return nil, transitionError(res, err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(res)}, nil
	})
}
