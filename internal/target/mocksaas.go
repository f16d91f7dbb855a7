// File: internal/target/mocksaas.go
package target

import (
	"time"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// MockSaaS is the built-in profile for the demo SaaS user-management portal.
// Its catalog priors encode how specific each locator is: exact attribute
// selectors near the top, looser structural and text fallbacks below.
func MockSaaS() *Profile {
	p := &Profile{
		Name:    "mock-saas",
		BaseURL: "http://localhost:3000",
		// The demo app is a single-page UI: /mock-saas serves the login form
		// and, once authenticated, the user management screen.
		Pages: map[string]string{
			"login_page": "/mock-saas",
			"users_page": "/mock-saas",
		},
		Catalog: map[string]*schemas.CandidateSet{
			"username_field": set("username_field",
				css("input[name='username']", 0.95),
				css("input#username", 0.85),
				css("input[type='email']", 0.60),
			),
			"password_field": set("password_field",
				css("input[name='password']", 0.95),
				css("input[type='password']", 0.90),
			),
			"login_submit": set("login_submit",
				css("button[type='submit']", 0.90),
				text("Login", 0.70),
			),
			"challenge_field": set("challenge_field",
				css("input[name='otp']", 0.95),
				css("input#otp", 0.85),
			),
			"challenge_submit": set("challenge_submit",
				text("Verify", 0.90),
				css("button[type='submit']", 0.70),
			),
			"dashboard_marker": set("dashboard_marker",
				text("User Management", 0.90),
				css("#dashboard", 0.60),
			),
			"user_table": set("user_table",
				css("table#users", 0.95),
				css("table", 0.70),
			),
			"next_page": set("next_page",
				text("Next", 0.90),
				css("button.next-page", 0.60),
			),
			"add_user_button": set("add_user_button",
				text("Add User", 0.90),
				css(".btn-add", 0.60),
			),
			"name_field": set("name_field",
				css("input[name='name']", 0.95),
				css("input#name", 0.85),
			),
			"email_field": set("email_field",
				css("input[name='email']", 0.95),
				css("input#email", 0.85),
			),
			"role_field": set("role_field",
				css("select[name='role']", 0.90),
				css("select#role", 0.80),
			),
			"create_submit": set("create_submit",
				css("form button[type='submit']", 0.90),
				text("Create", 0.80),
			),
			"search_field": set("search_field",
				css("input[placeholder*='Search']", 0.80),
				css("input[name='search']", 0.70),
			),
			"row_delete_button": set("row_delete_button",
				xpath("//tr[contains(., '{value}')]//button[contains(., 'Remove')]", 0.90),
				xpath("//tr[contains(., '{value}')]//button[contains(., 'Delete')]", 0.85),
			),
			"confirm_button": set("confirm_button",
				text("Confirm", 0.90),
				text("Yes", 0.70),
			),
			"user_row_by_text": set("user_row_by_text",
				xpath("//tr[contains(., '{value}')]", 0.90),
			),
			"confirmation_marker": set("confirmation_marker",
				css(".toast-success", 0.70),
				text("success", 0.50),
			),
		},
		Login: LoginSpec{
			Page:            "login_page",
			UsernameField:   "username_field",
			PasswordField:   "password_field",
			SubmitButton:    "login_submit",
			ChallengeField:  "challenge_field",
			ChallengeSubmit: "challenge_submit",
			DashboardMarker: "dashboard_marker",
		},
		Paging: PaginationSpec{
			NextTarget:      "next_page",
			DefaultMaxPages: 3,
		},
		Expiry: 20 * time.Minute,
	}

	p.Workflows = map[schemas.JobType]schemas.Workflow{
		schemas.JobScrapeUsers: {
			Name: "scrape_users",
			Steps: []schemas.Step{
				{Kind: schemas.StepAuthenticate, Required: true},
				{Kind: schemas.StepNavigate, Target: "users_page", Required: true},
				{Kind: schemas.StepExtractTable, Target: "user_table", Required: true, ResultKey: "users"},
			},
		},
		schemas.JobProvisionUser: {
			Name: "provision_user",
			Steps: []schemas.Step{
				{Kind: schemas.StepAuthenticate, Required: true},
				{Kind: schemas.StepNavigate, Target: "users_page", Required: true},
				{Kind: schemas.StepClick, Target: "add_user_button", Required: true},
				{Kind: schemas.StepFillField, Target: "name_field", Value: "param:name", Required: true},
				{Kind: schemas.StepFillField, Target: "email_field", Value: "param:email", Required: true},
				{Kind: schemas.StepFillField, Target: "role_field", Value: "param:role", Required: false},
				{Kind: schemas.StepClick, Target: "create_submit", Required: true},
				{Kind: schemas.StepWaitForConfirmation, Target: "user_row_by_text", Value: "param:email", Required: true, ResultKey: "confirmation"},
			},
		},
		schemas.JobDeprovisionUser: {
			Name: "deprovision_user",
			Steps: []schemas.Step{
				{Kind: schemas.StepAuthenticate, Required: true},
				{Kind: schemas.StepNavigate, Target: "users_page", Required: true},
				{Kind: schemas.StepFillField, Target: "search_field", Value: "param:identifier", Required: false},
				{Kind: schemas.StepClick, Target: "row_delete_button", Value: "param:identifier", Required: true},
				{Kind: schemas.StepClick, Target: "confirm_button", Required: false},
				{Kind: schemas.StepWaitForConfirmation, Target: "confirmation_marker", Required: false, ResultKey: "confirmation"},
			},
		},
	}

	return p
}
