package models

import "gorm.io/gorm"

func AutoMigrateAll(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&SOSAlert{},
		&EmergencyAssist{},
		&CounselingRequest{},
		&RequestMessage{},
		&Notification{},
	)
	if err != nil {
		return err
	}
	return nil
}
