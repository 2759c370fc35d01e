package store

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/chunga-ict/hfprovider/kernel/model"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New opens the TableStore selected by cfg.Database.Type.
func New(cfg *model.ProviderConfig, clock clockwork.Clock) (TableStore, error) {
	db := cfg.Database
	logrus.Debugf("opening [%s] store at [%s]", db.Type, db.Path)

	switch strings.ToLower(db.Type) {
	case model.DatabaseJSON, "":
		return NewFileStore(db.Path, clock)
	case model.DatabaseSQLite:
		return NewSQLiteStore(db.Path)
	case model.DatabaseBadger:
		return NewBadgerStore(db.Path)
	case model.DatabaseMemory:
		return NewMemoryStore(), nil
	case model.DatabaseDynamoDB:
		region := db.Region
		if region == "" {
			region = cfg.Region
		}
		awsCfg := aws.NewConfig().WithMaxRetries(cfg.MaxRetries)
		if region != "" {
			awsCfg = awsCfg.WithRegion(region)
		}
		if db.Endpoint != "" {
			awsCfg = awsCfg.WithEndpoint(db.Endpoint)
		}
		sess, err := session.NewSessionWithOptions(session.Options{
			Config:            *awsCfg,
			Profile:           cfg.Profile,
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create dynamodb session")
		}
		return NewDynamoDBStore(dynamodb.New(sess), db.TablePrefix), nil
	default:
		return nil, model.NewValidationError("unknown database type [%s]", db.Type)
	}
}
