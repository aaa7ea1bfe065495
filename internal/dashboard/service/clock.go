package service

import "time"

// timeNow is swapped out by tests that need to step the TOTP clock.
var timeNow = time.Now
