// Package automation runs the hub's periodic rules on a fixed tick:
// ambient-mode suppression during the night window with a morning
// restore, daily schedule triggers, one-shot timer triggers with a
// tolerance window, and the anti-idle keepalive request.
//
// All clock comparisons use a fixed UTC offset from config, so the
// rules behave identically wherever the process runs.
package automation
