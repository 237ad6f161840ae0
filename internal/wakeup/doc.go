// Package wakeup owns the process-local alarm clock.
//
// Reminder alarms are one-shot timers keyed by routine id: registering the
// same id again replaces the earlier timer, and a fired alarm publishes a
// reminder.fired event on the bus and forgets its definition. Stop halts the
// timers but keeps their definitions, so a later Start re-arms them.
//
// The service also hosts daily housekeeping jobs (HH:MM in the service
// timezone) on top of robfig/cron.
package wakeup
