package handler

import (
	"context"
	"fmt"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/notify"
	"CarbonReporting/internal/persistence"
)

// HandleUser folds a user lifecycle event into the dimension table and
// always appends an activity fact. UPDATED events are sparse, so the profile
// update goes through the COALESCE patch path instead of the full upsert.
func HandleUser(ctx context.Context, store Store, e *event.UserEvent) ([]SideEffect, error) {
	var effects []SideEffect

	switch e.Action {
	case event.UserRegistered:
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		if err := store.UpsertUser(ctx, persistence.UserRow{
			UserID:       e.UserID,
			Username:     e.Username,
			Email:        e.Email,
			Role:         e.Role,
			Region:       e.Region,
			Organization: e.Organization,
			PhoneNumber:  e.PhoneNumber,
			Enabled:      enabled,
			CreatedAt:    e.Timestamp,
		}); err != nil {
			return nil, fmt.Errorf("upsert user %d: %w", e.UserID, err)
		}

		n := notify.NewNotification(
			"USER_REGISTERED", notify.LevelInfo, notify.AudienceAdmin,
			"New user registration",
			fmt.Sprintf("User %d registered", e.UserID),
		)
		n.Data = map[string]interface{}{"userId": e.UserID}
		effects = append(effects,
			counterEffect(CounterUserRegistered),
			notificationEffect(n),
		)

	case event.UserLoggedIn:
		if err := store.RecordUserLogin(ctx, e.UserID, e.Timestamp); err != nil {
			return nil, fmt.Errorf("record login for user %d: %w", e.UserID, err)
		}
		effects = append(effects, counterEffect(CounterUserLogin))

	case event.UserUpdated:
		if err := store.UpdateUserProfile(ctx, persistence.UserPatch{
			UserID:       e.UserID,
			Username:     e.Username,
			Email:        e.Email,
			Role:         e.Role,
			Region:       e.Region,
			Organization: e.Organization,
			PhoneNumber:  e.PhoneNumber,
			UpdatedAt:    e.Timestamp,
		}); err != nil {
			return nil, fmt.Errorf("update user %d: %w", e.UserID, err)
		}

	case event.UserDeleted, event.UserDisabled:
		// Soft delete. The row stays so historical facts keep their join.
		if err := store.SetUserEnabled(ctx, e.UserID, false, e.Timestamp); err != nil {
			return nil, fmt.Errorf("disable user %d: %w", e.UserID, err)
		}

	case event.UserEnabled:
		if err := store.SetUserEnabled(ctx, e.UserID, true, e.Timestamp); err != nil {
			return nil, fmt.Errorf("enable user %d: %w", e.UserID, err)
		}

	default:
		return nil, fmt.Errorf("unknown user action %q", e.Action)
	}

	if err := store.InsertUserActivity(ctx, persistence.ActivityRow{
		UserID:     e.UserID,
		EventType:  string(e.Action),
		EventData:  e.Raw,
		OccurredAt: e.Timestamp,
	}); err != nil {
		return nil, fmt.Errorf("insert activity for user %d: %w", e.UserID, err)
	}

	return effects, nil
}
