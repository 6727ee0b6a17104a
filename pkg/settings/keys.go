package settings

import "fmt"

// Cache key layout. Every write must clear the specific key's cache, the
// group's cache and the per-ownership aggregate in the same call.
func cacheKeyFor(ownershipID *int64, key string) string {
	if ownershipID == nil {
		return fmt.Sprintf("setting_system_%s", key)
	}
	return fmt.Sprintf("setting_%d_%s", *ownershipID, key)
}

func cacheKeyForGroup(ownershipID *int64, group string) string {
	if ownershipID == nil {
		return fmt.Sprintf("settings_system_%s", group)
	}
	return fmt.Sprintf("settings_%d_%s", *ownershipID, group)
}

func cacheKeyForAll(ownershipID int64) string {
	return fmt.Sprintf("settings_all_%d", ownershipID)
}

// invalidationKeys lists every cache key a write to this row must clear
func invalidationKeys(setting *SystemSetting) []string {
	keys := []string{
		cacheKeyFor(setting.OwnershipID, setting.Key),
		cacheKeyForGroup(setting.OwnershipID, setting.Group),
	}
	if setting.OwnershipID != nil {
		keys = append(keys, cacheKeyForAll(*setting.OwnershipID))
	}
	return keys
}
