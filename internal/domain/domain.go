package domain

import (
	"github.com/yungbote/trackflow-backend/internal/domain/quality"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/domain/user"
)

type User = user.User
type NFCCard = user.NFCCard

type Project = tracking.Project
type Assembly = tracking.Assembly
type AssemblyStatusLog = tracking.AssemblyStatusLog
type Barcode = tracking.Barcode
type BarcodeKind = tracking.BarcodeKind
type LogisticsBatch = tracking.LogisticsBatch
type BatchAssembly = tracking.BatchAssembly

type QCImage = quality.QCImage

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&User{},
		&NFCCard{},
		&Project{},
		&Assembly{},
		&AssemblyStatusLog{},
		&Barcode{},
		&LogisticsBatch{},
		&BatchAssembly{},
		&QCImage{},
	}
}
