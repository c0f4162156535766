package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const jobColumns = "id, type, status, phase, progress, input_json, target_language, " +
	"dest_target, dest_path, dest_category, output_path, resolved_json, summary_json, " +
	"error_message, cancel_requested, created_at, started_at, completed_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		typeStr         string
		statusStr       string
		phase           sql.NullString
		progress        sql.NullFloat64
		inputJSON       string
		targetLanguage  sql.NullString
		destTarget      sql.NullString
		destPath        sql.NullString
		destCategory    sql.NullString
		outputPath      sql.NullString
		resolvedJSON    sql.NullString
		summaryJSON     sql.NullString
		errorMessage    sql.NullString
		cancelRequested sql.NullInt64
		createdRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&typeStr,
		&statusStr,
		&phase,
		&progress,
		&inputJSON,
		&targetLanguage,
		&destTarget,
		&destPath,
		&destCategory,
		&outputPath,
		&resolvedJSON,
		&summaryJSON,
		&errorMessage,
		&cancelRequested,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		Type:           Type(typeStr),
		Status:         Status(statusStr),
		Phase:          Phase(phase.String),
		Progress:       progress.Float64,
		TargetLanguage: targetLanguage.String,
		Destination: Destination{
			Target:   destTarget.String,
			Path:     destPath.String,
			Category: destCategory.String,
		},
		Output:       outputPath.String,
		ResolvedJSON: resolvedJSON.String,
		ErrorMessage: errorMessage.String,
	}
	if cancelRequested.Valid {
		job.CancelRequested = cancelRequested.Int64 != 0
	}
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &job.Input); err != nil {
			return nil, err
		}
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &job.Summary); err != nil {
			return nil, err
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
