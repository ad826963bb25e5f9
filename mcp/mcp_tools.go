package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// resolveWorker maps a wallet address to a worker account, creating it on
// first use, same as HTTP sign-in does.
func (s *MCPServer) resolveWorker(ctx context.Context, wallet string) (int64, error) {
	worker, err := s.store.UpsertWorker(ctx, wallet)
	if err != nil {
		return 0, err
	}
	return worker.ID, nil
}

// registerNextTaskTool creates a tool for fetching the worker's next task
func (s *MCPServer) registerNextTaskTool() {
	tool := mcp.NewTool("next_task",
		mcp.WithDescription("Fetch the next open labeling task for a worker"),
		mcp.WithString("wallet_address", mcp.Required(), mcp.Description("Worker wallet address")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wallet, err := request.RequireString("wallet_address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		workerID, err := s.resolveWorker(ctx, wallet)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve worker: %v", err)), nil
		}

		task, err := s.store.NextTask(ctx, workerID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get next task: %v", err)), nil
		}
		if task == nil {
			return mcp.NewToolResultText("No open tasks are left for this worker"), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Next task:\n\n%+v", task)), nil
	})
}

// registerSubmitLabelTool creates a tool for recording a label submission
func (s *MCPServer) registerSubmitLabelTool() {
	tool := mcp.NewTool("submit_label",
		mcp.WithDescription("Record a label submission for a task and credit the worker"),
		mcp.WithString("wallet_address", mcp.Required(), mcp.Description("Worker wallet address")),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("ID of the assigned task")),
		mcp.WithNumber("option_id", mcp.Required(), mcp.Description("ID of the chosen option")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wallet, err := request.RequireString("wallet_address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args := request.GetArguments()
		taskID := toInt64(args["task_id"])
		optionID := toInt64(args["option_id"])
		if taskID <= 0 || optionID <= 0 {
			return mcp.NewToolResultError("task_id and option_id must be positive integers"), nil
		}

		workerID, err := s.resolveWorker(ctx, wallet)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve worker: %v", err)), nil
		}

		res, err := s.store.RecordSubmission(ctx, workerID, taskID, optionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to record submission: %v", err)), nil
		}

		result := map[string]interface{}{
			"amount":    res.Submission.AmountLamports,
			"balance":   res.Balance,
			"next_task": res.NextTask,
		}

		return mcp.NewToolResultText(fmt.Sprintf("Submission recorded:\n\n%+v", result)), nil
	})
}

// registerGetBalanceTool creates a tool for reading a worker's balance
func (s *MCPServer) registerGetBalanceTool() {
	tool := mcp.NewTool("get_balance",
		mcp.WithDescription("Get a worker's pending and locked balance in lamports"),
		mcp.WithString("wallet_address", mcp.Required(), mcp.Description("Worker wallet address")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wallet, err := request.RequireString("wallet_address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		workerID, err := s.resolveWorker(ctx, wallet)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve worker: %v", err)), nil
		}

		bal, err := s.store.GetBalance(ctx, workerID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Balance:\n\n%+v", bal)), nil
	})
}

// registerRequestPayoutTool creates a tool for requesting a payout of the
// worker's full pending balance
func (s *MCPServer) registerRequestPayoutTool() {
	tool := mcp.NewTool("request_payout",
		mcp.WithDescription("Request an on-chain payout of the worker's full pending balance"),
		mcp.WithString("wallet_address", mcp.Required(), mcp.Description("Worker wallet address")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wallet, err := request.RequireString("wallet_address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		workerID, err := s.resolveWorker(ctx, wallet)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve worker: %v", err)), nil
		}

		payout, err := s.payouts.RequestPayout(ctx, workerID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to request payout: %v", err)), nil
		}

		result := map[string]interface{}{
			"payout_id": payout.ID,
			"amount":    payout.AmountLamports,
			"status":    payout.Status,
		}

		return mcp.NewToolResultText(fmt.Sprintf("Payout requested:\n\n%+v", result)), nil
	})
}

// registerGetTaskStatsTool creates a tool for reading per-option submission
// counts on a requester's task
func (s *MCPServer) registerGetTaskStatsTool() {
	tool := mcp.NewTool("get_task_stats",
		mcp.WithDescription("Get per-option submission counts for a requester's task"),
		mcp.WithString("wallet_address", mcp.Required(), mcp.Description("Requester wallet address")),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("ID of the task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wallet, err := request.RequireString("wallet_address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskID := toInt64(request.GetArguments()["task_id"])
		if taskID <= 0 {
			return mcp.NewToolResultError("task_id must be a positive integer"), nil
		}

		requester, err := s.store.UpsertRequester(ctx, wallet)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve requester: %v", err)), nil
		}

		stats, err := s.store.TaskStats(ctx, requester.ID, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task stats: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d options:\n\n%+v", len(stats), stats)), nil
	})
}
