package main

// Actuator bank
const (
	numChannels = 4

	pulseOff  = 0    // unpowered
	pulseMin  = 500  // absolute lower bound (us)
	pulseMax  = 2500 // absolute upper bound (us)
	pulseHome = 1500 // nominal centre (us)

	defaultPulseStep      = 22   // pulse units per interpolation step
	defaultIntervalFactor = 0.40 // ms of sleep per pulse unit travelled

	// poseScale converts choreography "motion units" into pulse units.
	poseScale = 10
)

// Default wiring of the four servos (BCM numbering) and their calibrated centres.
var (
	defaultPins  = [numChannels]int{17, 27, 22, 23}
	defaultHomes = [numChannels]int{1470, 1430, 1490, 1490}
)

// Gait library
const (
	// nContinuous stands in for "until stopped" in looping gaits.
	nContinuous = 99999

	trimMoveStep = 5 // motion units per move_up/move_down
	trimHomeStep = 5 // pulse units per home_up/home_down
)

// Autopilot thresholds (mm)
const (
	defaultDTouch        = 40
	defaultDTooNear      = 250
	defaultDNear         = 400
	defaultDYellowMargin = 100
	defaultDFar          = 8000

	defaultDReadyMin = 60
	defaultDReadyMax = 150

	defaultReadyCountCommit = 3
	defaultTouchCountCommit = 3

	defaultAutoPollMS      = 100  // control receive timeout per iteration
	defaultReactionPauseMS = 2000 // settle time after an obstacle reaction
)

// Network defaults
const (
	defaultTCPPort    = 12345
	defaultHTTPPort   = 8080
	defaultIPCSocket  = "/tmp/ottopi.sock"
	defaultPigpiodURL = "localhost:8888"
)

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_ESC        = 1
	KEY_0          = 11
	KEY_1          = 2
	KEY_2          = 3
	KEY_3          = 4
	KEY_4          = 5
	KEY_5          = 6
	KEY_Q          = 16
	KEY_W          = 17
	KEY_E          = 18
	KEY_S          = 31
	KEY_A          = 30
	KEY_D          = 32
	KEY_X          = 45
	KEY_SPACE      = 57
	KEY_UP         = 103
	KEY_LEFT       = 105
	KEY_RIGHT      = 106
	KEY_DOWN       = 108
	KEY_LEFTSHIFT  = 42
	KEY_RIGHTSHIFT = 54
	KEY_ENTER      = 28
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)
