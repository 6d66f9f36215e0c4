package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	LastStatus() int
	GetResponseField(field string) (interface{}, error)
	UseAttendantToken()
	UseParticipantToken()
}

// RegisterSteps registers generic request and assertion step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am authenticated as an attendant$`, steps.authenticateAttendant)
	ctx.Step(`^I am authenticated as a participant$`, steps.authenticateParticipant)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^the response status should be (\d+)$`, steps.assertStatus)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.assertStringField)
	ctx.Step(`^the response field "([^"]*)" should be (\d+)$`, steps.assertNumberField)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.assertBoolField)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) authenticateAttendant(ctx context.Context) error {
	s.tc.UseAttendantToken()
	return nil
}

func (s *commonSteps) authenticateParticipant(ctx context.Context) error {
	s.tc.UseParticipantToken()
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) assertStatus(ctx context.Context, expected int) error {
	if s.tc.LastStatus() != expected {
		return fmt.Errorf("expected status %d, got %d", expected, s.tc.LastStatus())
	}
	return nil
}

func (s *commonSteps) assertStringField(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	actual, ok := value.(string)
	if !ok {
		return fmt.Errorf("field %q is %T, not a string", field, value)
	}
	if actual != expected {
		return fmt.Errorf("expected field %q to be %q, got %q", field, expected, actual)
	}
	return nil
}

func (s *commonSteps) assertBoolField(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	actual, ok := value.(bool)
	if !ok {
		return fmt.Errorf("field %q is %T, not a bool", field, value)
	}
	if fmt.Sprintf("%t", actual) != expected {
		return fmt.Errorf("expected field %q to be %s, got %t", field, expected, actual)
	}
	return nil
}

func (s *commonSteps) assertNumberField(ctx context.Context, field string, expected int) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	actual, ok := value.(float64)
	if !ok {
		return fmt.Errorf("field %q is %T, not a number", field, value)
	}
	if int(actual) != expected {
		return fmt.Errorf("expected field %q to be %d, got %d", field, expected, int(actual))
	}
	return nil
}
