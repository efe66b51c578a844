package tui

// Color constants for the qcscan station theme
const (
	ColorBorder = "#3A3F55" // Grey-blue

	// Text Colors
	ColorPrimaryText   = "#E6EAF2" // Primary text (codes, user input, titles)
	ColorSecondaryText = "#B1B8C7"
	ColorDisabledText  = "#6D7383" // Muted text
	ColorPlaceholder   = "#B1B8C7"
	ColorHelpText      = "240" // Dark grey for help text

	// Accent Colors
	ColorAccentMain   = "#7C3AED" // Logo, accent elements, active borders
	ColorAccentBright = "#A78BFA" // Highlights, session clock

	// Outcome Colors
	ColorError   = "#EF4444" // Failed scans
	ColorSuccess = "#22C55E" // Started and completed items
	ColorWarning = "#F59E0B" // Policy rejections, overdue items
)
