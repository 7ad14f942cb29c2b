// Package dialogue is the conversational layer: the main menu, the
// add-reminder wizard and the list/delete/timezone flows. It holds
// per-user wizard state in memory and translates chat input into calls
// on the service core. All user-facing strings are Russian, matching
// the bot's audience.
package dialogue
