package aggregates

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/trackflow-backend/internal/domain"
)

func newStatusLog(assemblyID uuid.UUID, from, to, source string, actor *uuid.UUID, meta map[string]any) *types.AssemblyStatusLog {
	row := &types.AssemblyStatusLog{
		AssemblyID: assemblyID,
		FromStatus: from,
		ToStatus:   to,
		Source:     source,
		ChangedBy:  actor,
	}
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			row.Metadata = datatypes.JSON(raw)
		}
	}
	return row
}
