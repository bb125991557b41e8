package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/vibevault/vibevault/pkg/types"
)

// UpsertPairedDevice records a peer after a completed pairing. Re-pairing
// with a known device replaces its stored public key and name.
func (s *Store) UpsertPairedDevice(device *types.PairedDevice) error {
	return s.write("upsert_paired_device", func(tx *gorm.DB) error {
		var rec pairedDeviceRecord
		err := tx.Where("device_id = ?", device.DeviceID).First(&rec).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&pairedDeviceRecord{
				DeviceID:     device.DeviceID,
				DeviceName:   device.DeviceName,
				PublicKey:    device.PublicKey,
				SharedSecret: device.SharedSecret,
				PairedAt:     timestampNow(),
			}).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&pairedDeviceRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
			"device_name":   device.DeviceName,
			"public_key":    device.PublicKey,
			"shared_secret": device.SharedSecret,
			"paired_at":     timestampNow(),
		}).Error
	})
}

// GetPairedDevices lists all paired peers.
func (s *Store) GetPairedDevices() ([]*types.PairedDevice, error) {
	var recs []pairedDeviceRecord
	if err := s.db.Order("id asc").Find(&recs).Error; err != nil {
		return nil, &types.StoreError{Op: "get_paired_devices", Err: err}
	}
	devices := make([]*types.PairedDevice, 0, len(recs))
	for i := range recs {
		devices = append(devices, recs[i].toDevice())
	}
	return devices, nil
}

// GetPairedDevice fetches one paired peer by device id.
func (s *Store) GetPairedDevice(deviceID string) (*types.PairedDevice, error) {
	var rec pairedDeviceRecord
	if err := s.db.Where("device_id = ?", deviceID).First(&rec).Error; err != nil {
		return nil, notFoundOr("get_paired_device", err)
	}
	return rec.toDevice(), nil
}

// ForgetDevice removes a pairing record.
func (s *Store) ForgetDevice(deviceID string) error {
	return s.write("forget_device", func(tx *gorm.DB) error {
		res := tx.Where("device_id = ?", deviceID).Delete(&pairedDeviceRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// TouchLastSync stamps the device's last successful sync time.
func (s *Store) TouchLastSync(deviceID string, at time.Time) error {
	return s.write("touch_last_sync", func(tx *gorm.DB) error {
		return tx.Model(&pairedDeviceRecord{}).Where("device_id = ?", deviceID).
			Update("last_sync_at", formatTimestamp(at)).Error
	})
}
