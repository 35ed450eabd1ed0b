package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/repos/quality"
	"github.com/yungbote/trackflow-backend/internal/data/repos/tracking"
	"github.com/yungbote/trackflow-backend/internal/data/repos/user"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type UserFilter = user.UserFilter
type NFCCardRepo = user.NFCCardRepo

type ProjectRepo = tracking.ProjectRepo
type ProjectFilter = tracking.ProjectFilter
type AssemblyRepo = tracking.AssemblyRepo
type AssemblyFilter = tracking.AssemblyFilter
type BarcodeRepo = tracking.BarcodeRepo
type BatchRepo = tracking.BatchRepo
type BatchFilter = tracking.BatchFilter
type BatchAssemblyRepo = tracking.BatchAssemblyRepo
type StatusLogRepo = tracking.StatusLogRepo

type QCImageRepo = quality.QCImageRepo

// Set holds every repo bound to one *gorm.DB.
type Set struct {
	Users         UserRepo
	NFCCards      NFCCardRepo
	Projects      ProjectRepo
	Assemblies    AssemblyRepo
	Barcodes      BarcodeRepo
	Batches       BatchRepo
	BatchAssembly BatchAssemblyRepo
	StatusLogs    StatusLogRepo
	QCImages      QCImageRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Users:         user.NewUserRepo(db, log),
		NFCCards:      user.NewNFCCardRepo(db, log),
		Projects:      tracking.NewProjectRepo(db, log),
		Assemblies:    tracking.NewAssemblyRepo(db, log),
		Barcodes:      tracking.NewBarcodeRepo(db, log),
		Batches:       tracking.NewBatchRepo(db, log),
		BatchAssembly: tracking.NewBatchAssemblyRepo(db, log),
		StatusLogs:    tracking.NewStatusLogRepo(db, log),
		QCImages:      quality.NewQCImageRepo(db, log),
	}
}
