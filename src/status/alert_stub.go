//go:build !windows

package status

import "log"

func showAlert(title, message string) error {
	log.Printf("%s: %s", title, message)
	return nil
}
