package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"base-scraper/pkg/jobs"
	"base-scraper/pkg/models"
	"base-scraper/pkg/scrape"
)

// handleListLevels handles the list_levels tool
func (s *Server) handleListLevels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	levels, err := scrape.ProbeLevels(ctx, s.fetcher, s.cfg.AppConfig.SourceBaseURL, s.log)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to probe levels: %v", err)), nil
	}

	result := map[string]interface{}{
		"source":       s.cfg.AppConfig.SourceBaseURL,
		"main_hall":    levels[models.CategoryMainHall],
		"builder_hall": levels[models.CategoryBuilderHall],
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleScrapeLevel handles the scrape_level tool
func (s *Server) handleScrapeLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	categoryStr := request.GetString("category", "")
	category := models.HallCategory(categoryStr)
	if !category.IsValid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid category '%s' (expected 'main_hall' or 'builder_hall')", categoryStr)), nil
	}

	level := request.GetInt("level", 0)
	if level <= 0 {
		return mcp.NewToolResultError("level must be a positive integer"), nil
	}

	scope := jobs.Scope{Category: category, Level: level}
	// Background jobs outlive the tool call; they are bounded by the
	// configured job timeout, not the request context.
	job, created := s.runner.Start(context.Background(), scope)

	status := "started"
	if !created {
		status = "already_running"
	}
	result := map[string]interface{}{
		"status":   status,
		"job_id":   job.ID,
		"category": category,
		"level":    level,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleScrapeURL handles the scrape_url tool
func (s *Server) handleScrapeURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	if err := s.validateSourceURL(rawURL); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, created := s.runner.Start(context.Background(), jobs.Scope{AdHocURL: rawURL})

	status := "started"
	if !created {
		status = "already_running"
	}
	result := map[string]interface{}{
		"status": status,
		"job_id": job.ID,
		"url":    rawURL,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.manager.Get(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	return mcp.NewToolResultText(formatJSON(jobResult(job))), nil
}

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all := s.manager.List()
	summaries := make([]map[string]interface{}, 0, len(all))
	for _, job := range all {
		summaries = append(summaries, map[string]interface{}{
			"job_id":           job.ID,
			"scope":            job.Scope.Key(),
			"state":            job.State,
			"progress_percent": job.ProgressPercent,
			"started_at":       job.StartedAt.Format(time.RFC3339),
		})
	}

	result := map[string]interface{}{
		"jobs":       summaries,
		"total_jobs": len(summaries),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleStoreStats handles the store_stats tool
func (s *Server) handleStoreStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.baseStore.Load()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load store: %v", err)), nil
	}

	perCategory := make(map[models.HallCategory]int)
	perType := make(map[models.LayoutType]int)
	for _, rec := range doc.Bases {
		perCategory[rec.Category]++
		perType[rec.LayoutType]++
	}

	result := map[string]interface{}{
		"store_path":  s.cfg.AppConfig.StorePath,
		"total_bases": doc.TotalBases,
		"by_category": perCategory,
		"by_type":     perType,
	}
	if !doc.UpdatedAt.IsZero() {
		result["updated_at"] = doc.UpdatedAt.Format(time.RFC3339)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// jobResult renders the full job record for the status tool
func jobResult(job jobs.Job) map[string]interface{} {
	result := map[string]interface{}{
		"job_id":            job.ID,
		"scope":             job.Scope,
		"state":             job.State,
		"total_targets":     job.TotalTargets,
		"scraped_count":     job.ScrapedCount,
		"progress_percent":  job.ProgressPercent,
		"skipped_no_link":   job.SkippedNoLink,
		"collected_records": job.CollectedRecords,
		"per_url_errors":    job.PerURLErrors,
		"started_at":        job.StartedAt.Format(time.RFC3339),
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.FailureReason != "" {
		result["failure_reason"] = job.FailureReason
	}
	if job.PersistError != "" {
		result["persist_error"] = job.PersistError
	}
	return result
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
