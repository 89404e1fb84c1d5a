package source

import (
	"fmt"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

const definitionsQuery = `SELECT id, hidden, "index", points, "group", icon, title, description, page, tasks
FROM "ACHIEVEMENT-TrophyCreation"
ORDER BY id
LIMIT %d OFFSET %d`

const progressQuery = `SELECT p.player_id AS playerId,
       c.id AS achievementId,
       c.points AS points,
       p.task_id AS taskId,
       json_extract(t.value, '$.total') AS taskTotal,
       p.count AS total,
       p.time AS completionTime
FROM "ACHIEVEMENT-TrophyProgression" p
JOIN "ACHIEVEMENT-TrophyCreation" c
JOIN json_each(c.tasks) t ON json_extract(t.value, '$.id') = p.task_id
ORDER BY p.player_id, c.id, p.task_id
LIMIT %d OFFSET %d`

const activityQuery = `SELECT c.transaction_hash || ':' || c.rowid AS id,
       t.sender_address AS callerAddress,
       c.contract_address AS contractAddress,
       c.entrypoint AS entrypoint,
       t.executed_at AS executedAt,
       c.transaction_hash AS transactionHash
FROM transactions t
JOIN transaction_calls c ON c.transaction_hash = t.transaction_hash
WHERE t.executed_at >= '%s'
ORDER BY t.executed_at, c.rowid
LIMIT %d OFFSET %d`

const summaryQuery = `SELECT t.sender_address AS callerAddress,
       GROUP_CONCAT(c.entrypoint) AS entrypoints,
       MIN(t.executed_at) AS sessionStart,
       MAX(t.executed_at) AS sessionEnd,
       COUNT(*) AS actionCount
FROM transactions t
JOIN transaction_calls c ON c.transaction_hash = t.transaction_hash
WHERE t.executed_at >= '%s'
GROUP BY t.sender_address, strftime('%%Y-%%m-%%d %%H', t.executed_at)
ORDER BY sessionStart
LIMIT %d OFFSET %d`

// indexerTimeLayout is how the indexer stores executed_at
const indexerTimeLayout = "2006-01-02 15:04:05"

// BuildQuery renders the SQL statement for one page of a request
func BuildQuery(req Request) (string, error) {
	switch req.Kind {
	case types.KindDefinitions:
		return fmt.Sprintf(definitionsQuery, req.Limit, req.Offset), nil
	case types.KindProgress:
		return fmt.Sprintf(progressQuery, req.Limit, req.Offset), nil
	case types.KindActivity:
		since := time.UnixMilli(req.Since).UTC().Format(indexerTimeLayout)
		if req.Summaries {
			return fmt.Sprintf(summaryQuery, since, req.Limit, req.Offset), nil
		}
		return fmt.Sprintf(activityQuery, since, req.Limit, req.Offset), nil
	default:
		return "", fmt.Errorf("unknown source kind %q", req.Kind)
	}
}
