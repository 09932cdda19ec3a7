package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/c.mueller/househelper-sync/internal/database"
	"github.com/c.mueller/househelper-sync/internal/models"
	"github.com/danielgtaylor/huma/v2"
)

// Cluster exposes membership for health output
type Cluster interface {
	IsReady() bool
	LocalNode() string
	MemberCount() int
	GetMemberInfo() []models.ClusterMemberInfo
}

// Trigger schedules an immediate sync cycle
type Trigger interface {
	TriggerNow()
}

// Server holds the task service dependencies
type Server struct {
	db      *database.DB
	cluster Cluster
	trigger Trigger
}

// NewServer creates a new task service API. cluster and trigger may be nil.
func NewServer(db *database.DB, cluster Cluster, trigger Trigger) *Server {
	return &Server{
		db:      db,
		cluster: cluster,
		trigger: trigger,
	}
}

// RegisterRoutes registers all API routes with the Huma API
func (s *Server) RegisterRoutes(api huma.API) {
	registerHealthReady(api, s.cluster)

	// GET /health/info - Service info
	huma.Register(api, huma.Operation{
		OperationID: "health-info",
		Method:      http.MethodGet,
		Path:        "/health/info",
		Summary:     "Service information",
		Description: "Get task and timer counts and cluster members",
		Tags:        []string{"health"},
	}, s.healthInfo)

	// GET /tasks - List all tasks
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List all tasks",
		Description: "Get all tasks, oldest first",
		Tags:        []string{"tasks"},
	}, s.listTasks)

	// GET /tasks/{id} - Get a specific task
	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task",
		Description: "Get a specific task by ID",
		Tags:        []string{"tasks"},
	}, s.getTask)

	// POST /tasks - Create a new task
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task",
		Description:   "Create a new task. Repeating a create with the same externId returns the existing task.",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
	}, s.createTask)

	// POST /tasks/{id}/complete - Complete a task
	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Complete a task",
		Description: "Mark a task as completed. Completing twice keeps the first completion time.",
		Tags:        []string{"tasks"},
	}, s.completeTask)

	// DELETE /tasks/{id} - Delete a task
	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a task",
		Description:   "Delete a task",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusNoContent,
	}, s.deleteTask)

	// POST /timers - Start a timer
	huma.Register(api, huma.Operation{
		OperationID:   "start-timer",
		Method:        http.MethodPost,
		Path:          "/timers",
		Summary:       "Start a timer",
		Description:   "Record a started household timer. Repeating a start with the same externId returns the existing timer.",
		Tags:          []string{"timers"},
		DefaultStatus: http.StatusCreated,
	}, s.startTimer)

	// GET /timers - List timers
	huma.Register(api, huma.Operation{
		OperationID: "list-timers",
		Method:      http.MethodGet,
		Path:        "/timers",
		Summary:     "List timers",
		Description: "Get started timers, most recent first",
		Tags:        []string{"timers"},
	}, s.listTimers)
}

// Request/Response types

type ListTasksResponse struct {
	Body []models.Task
}

type TaskIDRequest struct {
	ID string `path:"id" minLength:"1" doc:"Task ID"`
}

type TaskResponse struct {
	Body models.Task
}

type CreateTaskRequest struct {
	Body models.CreateTaskInput
}

type StartTimerRequest struct {
	Body models.StartTimerInput
}

type TimerResponse struct {
	Body models.Timer
}

type ListTimersResponse struct {
	Body []models.Timer
}

// Handler implementations

func (s *Server) listTasks(ctx context.Context, input *struct{}) (*ListTasksResponse, error) {
	tasks, err := s.db.ListTasks(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tasks", err)
	}

	// Return empty array instead of nil
	if tasks == nil {
		tasks = []models.Task{}
	}

	return &ListTasksResponse{Body: tasks}, nil
}

func (s *Server) getTask(ctx context.Context, input *TaskIDRequest) (*TaskResponse, error) {
	task, err := s.db.GetTask(ctx, input.ID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, huma.Error404NotFound("Task not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get task", err)
	}

	return &TaskResponse{Body: *task}, nil
}

func (s *Server) createTask(ctx context.Context, input *CreateTaskRequest) (*TaskResponse, error) {
	task, err := s.db.CreateTask(ctx, input.Body.ExternID, input.Body.Title, input.Body.DueDate)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to create task", err)
	}

	s.changed()
	return &TaskResponse{Body: *task}, nil
}

func (s *Server) completeTask(ctx context.Context, input *TaskIDRequest) (*TaskResponse, error) {
	task, err := s.db.CompleteTask(ctx, input.ID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, huma.Error404NotFound("Task not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to complete task", err)
	}

	s.changed()
	return &TaskResponse{Body: *task}, nil
}

func (s *Server) deleteTask(ctx context.Context, input *TaskIDRequest) (*struct{}, error) {
	err := s.db.DeleteTask(ctx, input.ID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, huma.Error404NotFound("Task not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete task", err)
	}

	s.changed()
	return nil, nil
}

func (s *Server) startTimer(ctx context.Context, input *StartTimerRequest) (*TimerResponse, error) {
	timer, err := s.db.StartTimer(ctx, input.Body)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to start timer", err)
	}

	return &TimerResponse{Body: *timer}, nil
}

func (s *Server) listTimers(ctx context.Context, input *struct{}) (*ListTimersResponse, error) {
	timers, err := s.db.ListTimers(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list timers", err)
	}

	if timers == nil {
		timers = []models.Timer{}
	}

	return &ListTimersResponse{Body: timers}, nil
}

// changed refreshes the device projection after a write made through the
// service itself, when the service also runs the sync loop.
func (s *Server) changed() {
	if s.trigger != nil {
		s.trigger.TriggerNow()
	}
}

type HealthReadyResponse struct {
	Body struct {
		Ready   bool   `json:"ready" doc:"Whether the node is ready to serve requests"`
		Message string `json:"message,omitempty" doc:"Optional status message"`
	}
}

// registerHealthReady registers GET /health/ready, shared by both APIs.
func registerHealthReady(api huma.API, cluster Cluster) {
	huma.Register(api, huma.Operation{
		OperationID: "health-ready",
		Method:      http.MethodGet,
		Path:        "/health/ready",
		Summary:     "Readiness check",
		Description: "Check if the node is ready to serve requests",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*HealthReadyResponse, error) {
		resp := &HealthReadyResponse{}

		if cluster == nil {
			resp.Body.Ready = true
			resp.Body.Message = "Running in standalone mode"
			return resp, nil
		}

		if cluster.IsReady() {
			resp.Body.Ready = true
			resp.Body.Message = "Node is ready"
			return resp, nil
		}

		return nil, huma.Error503ServiceUnavailable("Node is joining the cluster, not ready yet")
	})
}

type ClusterInfo struct {
	NodeName    string                     `json:"node_name" doc:"Name of this node"`
	Ready       bool                       `json:"ready" doc:"Whether the node is ready to serve requests"`
	ClusterMode bool                       `json:"cluster_mode" doc:"Whether clustering is enabled"`
	MemberCount int                        `json:"member_count" doc:"Number of cluster members"`
	Members     []models.ClusterMemberInfo `json:"members,omitempty" doc:"List of cluster members"`
}

func clusterInfo(cluster Cluster) ClusterInfo {
	if cluster == nil {
		return ClusterInfo{NodeName: "standalone", Ready: true, MemberCount: 1}
	}
	return ClusterInfo{
		NodeName:    cluster.LocalNode(),
		Ready:       cluster.IsReady(),
		ClusterMode: true,
		MemberCount: cluster.MemberCount(),
		Members:     cluster.GetMemberInfo(),
	}
}

type HealthInfoResponse struct {
	Body struct {
		ClusterInfo
		TaskCount  int `json:"task_count" doc:"Number of tasks"`
		TimerCount int `json:"timer_count" doc:"Number of started timers"`
	}
}

func (s *Server) healthInfo(ctx context.Context, input *struct{}) (*HealthInfoResponse, error) {
	resp := &HealthInfoResponse{}
	resp.Body.ClusterInfo = clusterInfo(s.cluster)

	taskCount, err := s.db.CountTasks(ctx)
	if err != nil {
		taskCount = -1 // Indicate error
	}
	resp.Body.TaskCount = taskCount

	timerCount, err := s.db.CountTimers(ctx)
	if err != nil {
		timerCount = -1
	}
	resp.Body.TimerCount = timerCount

	return resp, nil
}
