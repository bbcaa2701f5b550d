package planner

// Settings tunes the planner. All knobs are deterministic; there is no
// randomness anywhere in planning.
type Settings struct {
	MustTargetCount     int `mapstructure:"must_target_count"`
	AllowedSupportCount int `mapstructure:"allowed_support_count"`
	AllowedStretchCount int `mapstructure:"allowed_stretch_count"`

	// SpacingWindow is the number of turns an issued target stays out of
	// play. SessionTurnBudget and MinExposures drive the end-of-session
	// exposure floor that can force early reuse.
	SpacingWindow     int `mapstructure:"spacing_window"`
	SessionTurnBudget int `mapstructure:"session_turn_budget"`
	MinExposures      int `mapstructure:"min_exposures"`

	BandColdThreshold    float64 `mapstructure:"band_cold_threshold"`
	BandFragileThreshold float64 `mapstructure:"band_fragile_threshold"`
	BandStretchThreshold float64 `mapstructure:"band_stretch_threshold"`

	AllowNewWords           bool `mapstructure:"allow_new_words"`
	MaxNewWordsPerSession   int  `mapstructure:"max_new_words_per_session"`
	ForceNewWordEveryNTurns int  `mapstructure:"force_new_word_every_n_turns"`

	TreatUnseenAsSupport bool `mapstructure:"treat_unseen_as_support"`
	SentenceLengthMax    int  `mapstructure:"sentence_length_max"`
}

// DefaultSettings returns the documented planner defaults.
func DefaultSettings() Settings {
	return Settings{
		MustTargetCount:         3,
		AllowedSupportCount:     60,
		AllowedStretchCount:     20,
		SpacingWindow:           3,
		SessionTurnBudget:       20,
		MinExposures:            1,
		BandColdThreshold:       0.4,
		BandFragileThreshold:    0.6,
		BandStretchThreshold:    0.85,
		AllowNewWords:           false,
		MaxNewWordsPerSession:   5,
		ForceNewWordEveryNTurns: 3,
		TreatUnseenAsSupport:    false,
		SentenceLengthMax:       20,
	}
}
