package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/internal/events"
)

const fetchNotificationsQuery = `
query fetchNotifications($from: Int!, $to: Int!) {
  notifications(orderBy: timestamp, orderDirection: desc, where: {
    timestamp_gt: $from,
    timestamp_lte: $to
  }) {
    id
    timestamp
    projectNest
    eventType
    additionalData
    content {
      id
      content
    }
  }
}`

const fetchAccountNestsQuery = `
query fetchAccountNests($account: String) {
  account(id: $account) {
    antAllocations(where: {maxValue_gt: "0"}) {
      project {
        id
      }
    }
  }
}`

const fetchFirstStakeQuery = `
query fetchAccountFirstStake($account: String) {
  stakeAddedEvents(first: 1, orderBy: createdAt, orderDirection: asc, where: {account: $account}) {
    createdAt
  }
}`

const fetchProjectsDataQuery = `
query fetchProjectsData($projects: [String!]!) {
  projects(where: {id_in: $projects}) {
    id
    name
    logo
  }
}`

// ProjectDisplay carries the lazily resolved display data for a project.
type ProjectDisplay struct {
	Address string
	Name    string
	Logo    string
}

type rawEventRecord struct {
	ID             string      `json:"id"`
	Timestamp      json.Number `json:"timestamp"`
	ProjectNest    string      `json:"projectNest"`
	EventType      int         `json:"eventType"`
	AdditionalData string      `json:"additionalData"`
	Content        *struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	} `json:"content"`
}

// RawEvents returns events with timestamp in (from, to], sorted newest-first.
// The interval convention matches the cache's range queries.
func (c *Client) RawEvents(ctx context.Context, from, to int64) ([]events.RawEvent, error) {
	var result struct {
		Notifications []rawEventRecord `json:"notifications"`
	}

	err := c.query(ctx, c.cfg.NotificationsURL, fetchNotificationsQuery, map[string]any{
		"from": from,
		"to":   to,
	}, &result)
	if err != nil {
		return nil, err
	}

	raws := make([]events.RawEvent, 0, len(result.Notifications))
	for _, record := range result.Notifications {
		ts, err := record.Timestamp.Int64()
		if err != nil {
			c.log.Warn("skipping event with malformed timestamp",
				zap.String("event_id", record.ID),
				zap.String("timestamp", record.Timestamp.String()))
			continue
		}

		raw := events.RawEvent{
			ID:             record.ID,
			Timestamp:      ts,
			ProjectNest:    strings.ToLower(record.ProjectNest),
			Kind:           events.Kind(record.EventType),
			AdditionalData: record.AdditionalData,
		}
		if record.Content != nil {
			raw.Content = &events.Content{ID: record.Content.ID, Body: record.Content.Content}
		}
		raws = append(raws, raw)
	}

	return raws, nil
}

// AccountInvolvements returns the projects in which the account holds a
// positive historical maximum allocation, in one round trip.
func (c *Client) AccountInvolvements(ctx context.Context, account string) ([]string, error) {
	if c.cfg.EarlyStageURL == "" {
		return nil, fmt.Errorf("graph: early-stage endpoint not configured")
	}

	var result struct {
		Account *struct {
			AntAllocations []struct {
				Project struct {
					ID string `json:"id"`
				} `json:"project"`
			} `json:"antAllocations"`
		} `json:"account"`
	}

	err := c.query(ctx, c.cfg.EarlyStageURL, fetchAccountNestsQuery, map[string]any{
		"account": strings.ToLower(account),
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.Account == nil {
		return nil, nil
	}

	projects := make([]string, 0, len(result.Account.AntAllocations))
	for _, allocation := range result.Account.AntAllocations {
		projects = append(projects, strings.ToLower(allocation.Project.ID))
	}

	return projects, nil
}

// FirstStakeTimestamp returns the account's first staking activity. The
// second return is false when the account has never staked.
func (c *Client) FirstStakeTimestamp(ctx context.Context, account string) (int64, bool, error) {
	if c.cfg.StakingURL == "" {
		return 0, false, fmt.Errorf("graph: staking endpoint not configured")
	}

	var result struct {
		StakeAddedEvents []struct {
			CreatedAt json.Number `json:"createdAt"`
		} `json:"stakeAddedEvents"`
	}

	err := c.query(ctx, c.cfg.StakingURL, fetchFirstStakeQuery, map[string]any{
		"account": strings.ToLower(account),
	}, &result)
	if err != nil {
		return 0, false, err
	}

	if len(result.StakeAddedEvents) == 0 {
		return 0, false, nil
	}

	ts, err := result.StakeAddedEvents[0].CreatedAt.Int64()
	if err != nil {
		return 0, false, fmt.Errorf("graph: malformed stake timestamp: %w", err)
	}

	return ts, true, nil
}

// ProjectDisplayData bulk-fetches name and logo for the given projects.
func (c *Client) ProjectDisplayData(ctx context.Context, projects []string) ([]ProjectDisplay, error) {
	if len(projects) == 0 {
		return nil, nil
	}
	if c.cfg.EarlyStageURL == "" {
		return nil, fmt.Errorf("graph: early-stage endpoint not configured")
	}

	normalized := make([]string, 0, len(projects))
	for _, project := range projects {
		normalized = append(normalized, strings.ToLower(project))
	}

	var result struct {
		Projects []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Logo string `json:"logo"`
		} `json:"projects"`
	}

	err := c.query(ctx, c.cfg.EarlyStageURL, fetchProjectsDataQuery, map[string]any{
		"projects": normalized,
	}, &result)
	if err != nil {
		return nil, err
	}

	displays := make([]ProjectDisplay, 0, len(result.Projects))
	for _, project := range result.Projects {
		displays = append(displays, ProjectDisplay{
			Address: strings.ToLower(project.ID),
			Name:    project.Name,
			Logo:    project.Logo,
		})
	}

	return displays, nil
}
