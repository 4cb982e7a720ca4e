// Package mcp открывает агентам те же операции, что и REST: изменения идут
// через сервис и рассылаются подключённым клиентам.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatTracker/internal/logger"
	"chatTracker/internal/models/event"
	"chatTracker/internal/models/message"
	"chatTracker/internal/models/task"
	"chatTracker/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const ServerName = "chat-tracker"
const ServerVersion = "0.1.0"

type ChatService interface {
	ListTasks(context.Context) ([]*task.Task, error)
	CreateTask(context.Context, service.NewTask) (*task.Task, error)
	UpdateTask(context.Context, int64, ...task.TaskOption) (*task.Task, error)
	DeleteTask(context.Context, int64) error
	ListMessages(ctx context.Context, room string, limit int) ([]*message.Message, error)
	PostMessage(context.Context, event.PostMessagePayload) (*message.Message, error)
	AssignTask(ctx context.Context, messageID, taskID int64) (*message.Message, error)
}

func NewServer(svc ChatService) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List all tasks, newest first."),
	), listTasksHandler(svc))

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. Status defaults to todo."),
		mcp.WithString("title", mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("status", mcp.Description("todo|inprogress|done")),
		mcp.WithNumber("progress", mcp.Description("Progress 0-100")),
		mcp.WithString("due_date", mcp.Description("Due date, RFC 3339")),
	), createTaskHandler(svc))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update a task. Omitted fields keep their current value."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("todo|inprogress|done")),
		mcp.WithNumber("progress", mcp.Description("Progress 0-100")),
		mcp.WithString("due_date", mcp.Description("Due date, RFC 3339; empty string clears it")),
	), updateTaskHandler(svc))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task. Linked messages are unlinked."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), deleteTaskHandler(svc))

	s.AddTool(mcp.NewTool("list_messages",
		mcp.WithDescription("List the most recent chat messages, oldest first."),
		mcp.WithString("chat_id", mcp.Description("Room filter; empty means all rooms")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of messages (1-1000)")),
	), listMessagesHandler(svc))

	s.AddTool(mcp.NewTool("post_message",
		mcp.WithDescription("Post a chat message. It is broadcast to every connected client."),
		mcp.WithString("user", mcp.Description("Author display name")),
		mcp.WithString("text", mcp.Description("Message text"), mcp.Required()),
		mcp.WithString("chat_id", mcp.Description("Room")),
		mcp.WithNumber("task_id", mcp.Description("Task to link")),
	), postMessageHandler(svc))

	s.AddTool(mcp.NewTool("assign_task",
		mcp.WithDescription("Link a message to an existing task."),
		mcp.WithNumber("message_id", mcp.Description("Message id"), mcp.Required()),
		mcp.WithNumber("task_id", mcp.Description("Task id"), mcp.Required()),
	), assignTaskHandler(svc))

	return s
}

// Handler - streamable HTTP транспорт для монтирования в роутер
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}

func listTasksHandler(svc ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := svc.ListTasks(ctx)
		if err != nil {
			return toolError("list_tasks", err), nil
		}
		if tasks == nil {
			tasks = []*task.Task{}
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func createTaskHandler(svc ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)

		in := service.NewTask{
			Title:       mcp.ParseString(request, "title", ""),
			Description: mcp.ParseString(request, "description", ""),
			Status:      mcp.ParseString(request, "status", ""),
		}
		if _, ok := args["progress"]; ok {
			progress := mcp.ParseInt(request, "progress", 0)
			in.Progress = &progress
		}
		if raw := mcp.ParseString(request, "due_date", ""); raw != "" {
			due, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("due_date: %v", err)), nil
			}
			in.DueDate = &due
		}

		created, err := svc.CreateTask(ctx, in)
		if err != nil {
			return toolError("create_task", err), nil
		}
		return jsonResult(created)
	}
}

func updateTaskHandler(svc ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseInt64(request, "id", 0)
		args := arguments(request)

		var options []task.TaskOption
		if title, ok := args["title"].(string); ok {
			options = append(options, task.WithTitle(title))
		}
		if description, ok := args["description"].(string); ok {
			options = append(options, task.WithDescription(description))
		}
		if status, ok := args["status"].(string); ok {
			options = append(options, task.WithStatus(task.Status(status)))
		}
		if _, ok := args["progress"]; ok {
			options = append(options, task.WithProgress(mcp.ParseInt(request, "progress", 0)))
		}
		if raw, ok := args["due_date"].(string); ok {
			if raw == "" {
				options = append(options, task.WithDueDate(nil))
			} else {
				due, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("due_date: %v", err)), nil
				}
				options = append(options, task.WithDueDate(&due))
			}
		}

		updated, err := svc.UpdateTask(ctx, id, options...)
		if err != nil {
			return toolError("update_task", err), nil
		}
		return jsonResult(updated)
	}
}

func deleteTaskHandler(svc ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseInt64(request, "id", 0)
		if err := svc.DeleteTask(ctx, id); err != nil {
			return toolError("delete_task", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %d deleted.", id)), nil
	}
}

func listMessagesHandler(svc ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		room := mcp.ParseString(request, "chat_id", "")
		limit := mcp.ParseInt(request, "limit", 0)

		msgs, err := svc.ListMessages(ctx, room, limit)
		if err != nil {
			return toolError("list_messages", err), nil
		}
		if msgs == nil {
			msgs = []*message.Message{}
		}
		return jsonResult(map[string]any{"messages": msgs})
	}
}

func postMessageHandler(svc ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)

		payload := event.PostMessagePayload{
			User: mcp.ParseString(request, "user", ""),
			Text: mcp.ParseString(request, "text", ""),
		}
		if chatID, ok := args["chat_id"].(string); ok {
			payload.ChatID = &chatID
		}
		if _, ok := args["task_id"]; ok {
			taskID := mcp.ParseInt64(request, "task_id", 0)
			payload.TaskID = &taskID
		}

		msg, err := svc.PostMessage(ctx, payload)
		if err != nil {
			return toolError("post_message", err), nil
		}
		return jsonResult(msg)
	}
}

func assignTaskHandler(svc ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		messageID := mcp.ParseInt64(request, "message_id", 0)
		taskID := mcp.ParseInt64(request, "task_id", 0)

		msg, err := svc.AssignTask(ctx, messageID, taskID)
		if err != nil {
			return toolError("assign_task", err), nil
		}
		return jsonResult(msg)
	}
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("сериализация результата: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError отдаёт агенту код и сводку; подробности внутренних ошибок только в журнале
func toolError(tool string, err error) *mcp.CallToolResult {
	var busErr *service.BusinessError
	if !errors.As(err, &busErr) {
		busErr = service.NewInternal(tool, err)
	}
	if busErr.Code == service.CodeInternal || busErr.Code == service.CodeConflict {
		logger.Error("MCP: Ошибка инструмента", busErr.Unwrap(), zap.String("tool", tool))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", busErr.Code, busErr.Message))
}
