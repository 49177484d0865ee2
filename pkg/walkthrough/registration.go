package walkthrough

import (
	"fmt"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
)

const (
	DefaultURL           = "https://demo.wpeverest.com/user-registration/guest-registration-form/"
	DefaultTitle         = "Guest Registration Form – User Registration"
	DefaultURLFragment   = "guest-registration-form"
	DefaultSuccessPhrase = "User successfully registered."
)

// Locators of the guest registration form
var (
	FirstNameField   = browser.ID("first_name")
	LastNameField    = browser.ID("last_name")
	EmailField       = browser.ID("user_email")
	DateOfBirthField = browser.CSS("input.ur-flatpickr-field")
	NationalityField = browser.ID("input_box_1665629217")
	PhoneField       = browser.ID("phone_1665627880")
	CountrySelect    = browser.ID("country_1665629257")
	PrivacyCheckbox  = browser.ID("privacy_policy_1665633140")
	SubmitButton     = browser.CSS("button.ur-submit-button")
	SuccessMessage   = browser.CSS(".ur-message.user-registration-message")
)

// GenderRadio locates the gender radio button carrying value
func GenderRadio(value string) browser.Locator {
	return browser.XPath(fmt.Sprintf("//input[@value='%s']", value))
}

// Target describes the page under test and what a pass looks like
type Target struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	URLFragment   string `json:"url_fragment"`
	SuccessPhrase string `json:"success_phrase"`
}

// Registration holds the values submitted through the form
type Registration struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Nationality string `json:"nationality"`
	Phone       string `json:"phone"`
	Country     string `json:"country"`
}

// Options parameterises the registration walkthrough
type Options struct {
	Target      Target
	Form        Registration
	Screenshots ScreenshotStore
}

// DefaultTarget returns the public demo form
func DefaultTarget() Target {
	return Target{
		URL:           DefaultURL,
		Title:         DefaultTitle,
		URLFragment:   DefaultURLFragment,
		SuccessPhrase: DefaultSuccessPhrase,
	}
}

// DefaultRegistration returns the guest submitted by every run
func DefaultRegistration() Registration {
	return Registration{
		FirstName:   "John",
		LastName:    "Doe",
		Email:       "johndoe@example.com",
		Gender:      "Male",
		DateOfBirth: "1990-01-01",
		Nationality: "American",
		Phone:       "(123) 456-7890",
		Country:     "Bangladesh",
	}
}

// DefaultOptions returns the demo target, default guest and screenshot store
func DefaultOptions() Options {
	return Options{
		Target:      DefaultTarget(),
		Form:        DefaultRegistration(),
		Screenshots: DefaultScreenshotStore(),
	}
}

// Fields returns the form controls in fill order
func (r Registration) Fields() []Field {
	return []Field{
		{Step: "fill-first-name", Locator: FirstNameField, Value: r.FirstName, Mode: Typed},
		{Step: "fill-last-name", Locator: LastNameField, Value: r.LastName, Mode: Typed},
		{Step: "fill-email", Locator: EmailField, Value: r.Email, Mode: Typed},
		{Step: "select-gender", Locator: GenderRadio(r.Gender), Value: r.Gender, Mode: ScriptClick},
		// The date picker input is read-only for users, so it only has to exist.
		{Step: "fill-date-of-birth", Locator: DateOfBirthField, Value: r.DateOfBirth, Mode: Injected, Readiness: Present},
		{Step: "fill-nationality", Locator: NationalityField, Value: r.Nationality, Mode: Typed},
		{Step: "fill-phone", Locator: PhoneField, Value: r.Phone, Mode: ClearThenTyped},
		{Step: "select-country", Locator: CountrySelect, Value: r.Country, Mode: Selected},
	}
}

// Plan returns the ordered steps of the registration walkthrough
func Plan(opts Options) []Step {
	steps := []Step{
		OpenPage("open-target", models.CheckpointLanding, opts.Target.URL),
		VerifyLanding(opts.Target),
		OpenPage("ensure-form-loaded", models.CheckpointForm, opts.Target.URL),
	}
	for _, f := range opts.Form.Fields() {
		steps = append(steps, Populate(f))
	}
	steps = append(steps,
		EnsureChecked("accept-agreement", PrivacyCheckbox),
		Submit(SubmitButton),
		VerifyOutcome(SuccessMessage, opts.Target.SuccessPhrase),
		CaptureScreenshot(opts.Screenshots),
	)
	return steps
}

// StepNames lists the step names of the default plan in order
func StepNames() []string {
	steps := Plan(DefaultOptions())
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

// Lookup finds a step by name
func Lookup(steps []Step, name string) (Step, bool) {
	for _, s := range steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}
