package cmd

import (
	"context"
	"strings"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/adb"
)

func parseDeviceList(devices []string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, id := range devices {
		for _, part := range strings.Split(id, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, exists := seen[part]; exists {
				continue
			}
			seen[part] = struct{}{}
			result = append(result, part)
		}
	}
	return result
}

// resolveTargetDevices returns the explicit serials, or every online device.
func resolveTargetDevices(ctx context.Context, client *adb.Client, explicit []string) ([]string, error) {
	if ids := parseDeviceList(explicit); len(ids) > 0 {
		return ids, nil
	}
	devices, err := client.Devices(ctx)
	if err != nil {
		return nil, err
	}
	var online []string
	for _, d := range devices {
		if d.Online() {
			online = append(online, d.Serial)
		}
	}
	return online, nil
}

// selectDevice picks the serial an install targets when none is configured.
// adb refuses to guess between several devices, so neither do we.
func selectDevice(ctx context.Context, client *adb.Client) (string, error) {
	if client.Serial() != "" {
		return client.Serial(), nil
	}
	online, err := resolveTargetDevices(ctx, client, nil)
	if err != nil {
		return "", err
	}
	switch len(online) {
	case 0:
		return "", apperrors.NewNotFoundError("NO_DEVICE", "no online device").
			WithSuggestions([]string{
				"Connect the device and enable USB debugging",
				"Authorize this computer when prompted on the device",
			})
	case 1:
		return online[0], nil
	default:
		return "", apperrors.NewValidationError("DEVICE_AMBIGUOUS", "more than one device is online").
			WithContext("devices", strings.Join(online, ", ")).
			WithSuggestion("Choose one with --device <serial>")
	}
}
