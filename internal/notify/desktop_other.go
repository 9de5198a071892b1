//go:build !darwin && !linux

package notify

func newPlatform() platform {
	return nil
}
