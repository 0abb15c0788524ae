// Package pages holds the page objects of the application under test.
//
// Selectors live in a YAML locator file keyed by page and element name:
//
//	login_page:
//	  email_field: "//input[@id='company-email']"
//	  sign_in_button: "//button[normalize-space()='Sign In']"
//	home_page:
//	  landing_page_container: "//div[contains(@class, 'landing-page')]"
//	text_messages:
//	  login_page:
//	    invalid_credentials: "Invalid credentials"
//
// Missing files and missing entries fall back to DefaultLocators.
//
// LoginPage implements session.LoginFlow, so a session.Manager logs in by
// filling the form and waiting for the home page's landing container.
package pages
