package flow

const (
	textBackHint      = "Send 0 to go back."
	textFailure       = "Something went wrong on our side. Your current form was reset, please start again from the menu."
	textWelcome       = "Welcome to WorkLog!"
	textRootMenu      = "Hi, %s! What would you like to do?"
	textNotUnderstood = "Sorry, I did not understand that. Pick an option from the menu."
	textPickOption    = "Please pick one of the listed options."
	textMore          = "More options:"
	textHelp          = "WorkLog records your working hours.\n" +
		"Pick \"Log work\" and answer the questions, then confirm to save.\n" +
		"Commands: \"menu\" shows the menu, \"today\" shows today's entries, \"my\" lets you edit recent entries.\n" +
		"Send 0 to go back a step, \"reset\" to abandon the current form."

	textRegisterName = "Please send your full name (3 to 50 characters)."
	textNameLength   = "The name must be between 3 and 50 characters."
	textNameSaved    = "Thanks, %s, you are registered."
	textNameChanged  = "Your name is now %s."
	textNoAdminRole  = "The admin panel is only available to administrators."

	textDate           = "Which day? Pick one or type a date (YYYY-MM-DD, dd.mm.yyyy or dd.mm)."
	textDateInvalid    = "I could not read that date. Use YYYY-MM-DD, dd.mm.yyyy or dd.mm."
	textDateFuture     = "That date is in the future."
	textCategory       = "What kind of work?"
	textMachinery      = "Which machine?"
	textActivity       = "Which activity?"
	textActivityCustom = "Describe the activity (3 to 50 characters)."
	textActivityLength = "The description must be between 3 and 50 characters."
	textLocationGroup  = "Where did you work?"
	textLocation       = "Which location?"
	textNoLocations    = "There are no locations in that group yet. Pick another one or ask an administrator."
	textCrop           = "Which crop?"
	textHours          = "How many hours? (1 to 24)"
	textHoursInvalid   = "Hours must be a whole number from 1 to 24."
	textBudgetExceeded = "That would exceed 24 hours on %s. You have %d hours logged and can add at most %d."
	textBudgetFull     = "The day %s is already full (24 hours)."
	textTrips          = "How many trips? (1 to 100)"
	textTripsInvalid   = "Trips must be a whole number from 1 to 100."
	textConfirm        = "Please check your entry:"
	textSaved          = "Saved."

	textWorkType       = "Which work type?"
	textRows           = "How many rows? (1 to 1000)"
	textRowsInvalid    = "Rows must be a whole number from 1 to 1000."
	textField          = "Which field?"
	textWorkers        = "How many workers? (1 to 200)"
	textWorkersInvalid = "Workers must be a whole number from 1 to 200."
	textBags           = "How many bags? (1 to 10000)"
	textBagsInvalid    = "Bags must be a whole number from 1 to 10000."

	textEditPick     = "Which entry do you want to change?"
	textEditNone     = "You have no entries from the last 24 hours."
	textEditAction   = "What do you want to do with this entry?"
	textEditHours    = "Send the new number of hours (1 to 24)."
	textEditDelete   = "Delete this entry?"
	textEditGone     = "That entry no longer exists."
	textHoursUpdated = "Hours updated."
	textDeleted      = "Entry deleted."

	textAdminPanel    = "Admin panel:"
	textAdminGroup    = "Which group?"
	textAdminName     = "Send the name to add (2 to 50 characters)."
	textAdminLength   = "The name must be between 2 and 50 characters."
	textAdminRemove   = "Which one should be removed?"
	textAdminEmpty    = "That group is empty."
	textAdminAdded    = "Added %q."
	textAdminExists   = "%q already exists."
	textAdminRemoved  = "Removed %q."
	textAdminMissing  = "%q was not found."
	textExportQueued  = "Export of %s queued."
	textExportBlocked = "Export is not available right now."

	textStatsToday = "Today (%s): %d hours."
	textStatsWeek  = "Last 7 days: %d hours."
	textStatsEmpty = "Nothing logged today."
)
