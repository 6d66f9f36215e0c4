package checkin

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
	"github.com/gofrs/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	LastStatus() int
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers check-in-specific step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &checkinSteps{tc: tc, pairs: map[string][2]string{}}

	ctx.Step(`^a registration "([^"]*)" for event "([^"]*)"$`, steps.definePair)
	ctx.Step(`^I check in registration "([^"]*)"$`, steps.checkin)
	ctx.Step(`^I check in registration "([^"]*)" again$`, steps.checkin)
	ctx.Step(`^I sync an offline batch with registrations "([^"]*)"$`, steps.syncOfflineBatch)
	ctx.Step(`^I request the attendance status of registration "([^"]*)"$`, steps.attendanceStatus)
	ctx.Step(`^I download the roster for event of registration "([^"]*)"$`, steps.downloadRoster)
}

type checkinSteps struct {
	tc TestContext
	// pairs maps scenario aliases to generated (registration, event) UUIDs so
	// scenarios stay readable while every run uses fresh identifiers.
	pairs map[string][2]string
}

func (s *checkinSteps) definePair(ctx context.Context, alias, eventAlias string) error {
	registrationID, err := uuid.NewV4()
	if err != nil {
		return err
	}

	eventID := ""
	if pair, ok := s.pairs[eventAlias]; ok {
		eventID = pair[1]
	}
	if eventID == "" {
		generated, err := uuid.NewV4()
		if err != nil {
			return err
		}
		eventID = generated.String()
	}

	s.pairs[alias] = [2]string{registrationID.String(), eventID}
	s.pairs[eventAlias] = [2]string{"", eventID}
	return nil
}

func (s *checkinSteps) lookup(alias string) ([2]string, error) {
	pair, ok := s.pairs[alias]
	if !ok {
		return pair, fmt.Errorf("unknown registration alias %q", alias)
	}
	return pair, nil
}

func (s *checkinSteps) checkin(ctx context.Context, alias string) error {
	pair, err := s.lookup(alias)
	if err != nil {
		return err
	}
	return s.tc.POST("/checkin", map[string]interface{}{
		"registration_id": pair[0],
		"event_id":        pair[1],
		"origin":          "online",
	})
}

func (s *checkinSteps) syncOfflineBatch(ctx context.Context, aliasList string) error {
	var items []map[string]interface{}
	for _, alias := range splitAliases(aliasList) {
		pair, err := s.lookup(alias)
		if err != nil {
			return err
		}
		items = append(items, map[string]interface{}{
			"registration_id": pair[0],
			"event_id":        pair[1],
		})
	}
	return s.tc.POST("/checkin/offline-sync", map[string]interface{}{"checkins": items})
}

func (s *checkinSteps) attendanceStatus(ctx context.Context, alias string) error {
	pair, err := s.lookup(alias)
	if err != nil {
		return err
	}
	return s.tc.GET("/attendance/"+pair[0], nil)
}

func (s *checkinSteps) downloadRoster(ctx context.Context, alias string) error {
	pair, err := s.lookup(alias)
	if err != nil {
		return err
	}
	return s.tc.GET("/events/"+pair[1]+"/attendance-roster", nil)
}

func splitAliases(list string) []string {
	var aliases []string
	current := ""
	for _, r := range list {
		switch r {
		case ',', ' ':
			if current != "" {
				aliases = append(aliases, current)
				current = ""
			}
		default:
			current += string(r)
		}
	}
	if current != "" {
		aliases = append(aliases, current)
	}
	return aliases
}
