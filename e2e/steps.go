package e2e

import (
	"github.com/cucumber/godog"

	"presence/e2e/steps/checkin"
	"presence/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (authentication, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register check-in-specific steps
	checkin.RegisterSteps(ctx, tc)
}
