package repo

import (
	"errors"
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

// notifyLimit keeps NOTIFY payloads under Postgres' 8000 byte cap.
const notifyLimit = 7900

var channelRE = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ErrNotPostgres is returned when change triggers are requested on a store
// that has no NOTIFY support.
var ErrNotPostgres = errors.New("change triggers require postgres")

// ChangeTriggerSQL returns the statements that publish issue status updates
// and message inserts on channel. Each statement must be executed on its own.
func ChangeTriggerSQL(channel string) ([]string, error) {
	if !channelRE.MatchString(channel) {
		return nil, fmt.Errorf("invalid notify channel %q", channel)
	}
	fn := fmt.Sprintf(`CREATE OR REPLACE FUNCTION support_notify_change() RETURNS trigger AS $$
DECLARE
  rec jsonb := to_jsonb(NEW);
  payload jsonb;
BEGIN
  payload := jsonb_build_object('table', TG_TABLE_NAME, 'op', TG_OP, 'record', rec);
  IF TG_OP = 'UPDATE' THEN
    payload := payload || jsonb_build_object('old_record', to_jsonb(OLD));
  END IF;
  IF octet_length(payload::text) > %d THEN
    payload := jsonb_set(payload, '{record}', rec - 'text') || jsonb_build_object('truncated', true);
  END IF;
  PERFORM pg_notify(TG_ARGV[0], payload::text);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql`, notifyLimit)

	return []string{
		fn,
		`DROP TRIGGER IF EXISTS issues_notify_change ON issues`,
		fmt.Sprintf(`CREATE TRIGGER issues_notify_change AFTER UPDATE OF status ON issues
  FOR EACH ROW WHEN (OLD.status IS DISTINCT FROM NEW.status)
  EXECUTE FUNCTION support_notify_change('%s')`, channel),
		`DROP TRIGGER IF EXISTS messages_notify_change ON messages`,
		fmt.Sprintf(`CREATE TRIGGER messages_notify_change AFTER INSERT ON messages
  FOR EACH ROW EXECUTE FUNCTION support_notify_change('%s')`, channel),
	}, nil
}

// InstallChangeTriggers (re)creates the change-notification triggers.
func InstallChangeTriggers(db *gorm.DB, channel string) error {
	if !IsPostgres(db) {
		return ErrNotPostgres
	}
	stmts, err := ChangeTriggerSQL(channel)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, s := range stmts {
			if err := tx.Exec(s).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
