// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - CreateFormRequest: title, strategy, articles_per_session, quota_settings, ...
  - ImportArticlesRequest: records ({short_id, text}), replace
  - AssignRequest: session_token, demographic_answers
  - SessionTokenRequest: session_token

# Response Types

Types for JSON responses:

  - CreateFormResponse: form_id
  - ImportArticlesResponse: batch_id, articles, job_sets, duplicates
  - StartSessionResponse: session_token, session
  - AssignmentResult: assigned, articles, reason, available_count, required, ...
  - QuotaStatusResponse: per-unit reserved, completed and remaining counts
  - QuotaSettingsResponse: settings_version, quota_settings
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Form: assignment strategy, limits and the stored quota settings
  - Session: a participant's progress; View gives the public projection
  - AllocationUnit: *IndividualArticle or *JobSet
  - Article: an imported text; View strips it to id, short_id and text
  - QuotaCounts: reserved and completed counters per group

AllocationUnit is a closed set. Code that needs the concrete type uses a
type switch with a default branch that returns an error.

# Constants

Assignment strategies:

	StrategyIndividual = "individual"
	StrategyJobSet     = "job_set"

Session status values:

	StatusStarted      = "started"
	StatusDemographics = "demographics"
	StatusAnnotating   = "annotating"
	StatusScreenedOut  = "screened_out"
	StatusCompleted    = "completed"
	StatusExpired      = "expired"

Screen-out reasons:

	ReasonUnderAge        = "under_age"
	ReasonNoMatchingGroup = "no_matching_group"
	ReasonQuotaFull       = "quota_full"
*/
package models
