package models

import (
	"log"

	"bitbucket.org/gezisoft/agency_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&SheetConnection{}, &SheetRowFingerprint{}, &SheetSyncLock{}, &SheetSyncRun{},
		&Hotel{}, &HotelInventory{},
		&WritebackJob{}, &WritebackMarker{}, &WritebackLogEntry{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
