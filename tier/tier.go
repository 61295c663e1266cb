package tier

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/raulk/clock"
	"github.com/samber/mo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"saffron/db"
	"saffron/lib/ftypes"
	"saffron/modelstore"
	"saffron/resource"
	"saffron/s3"
	"saffron/sagemaker"
	"saffron/sns"
)

type TierArgs struct {
	s3.S3Args                 `json:"s3_._s3_args"`
	sagemaker.SagemakerArgs   `json:"sagemaker_._sagemaker_args"`
	modelstore.ModelStoreArgs `json:"modelstore_._model_store_args"`
	sns.SnsArgs               `json:"sns_._sns_args"`

	MysqlHost     string         `arg:"--mysql-host,env:MYSQL_SERVER_ADDRESS" json:"mysql_host,omitempty"`
	MysqlDB       string         `arg:"--mysql-db,env:MYSQL_DATABASE_NAME" json:"mysql_db,omitempty"`
	MysqlUsername string         `arg:"--mysql-user,env:MYSQL_USERNAME" json:"mysql_username,omitempty"`
	MysqlPassword string         `arg:"--mysql-password,env:MYSQL_PASSWORD" json:"mysql_password,omitempty"`
	TierID        ftypes.RealmID `arg:"--tier-id,env:TIER_ID" json:"tier_id,omitempty"`
	Dev           bool           `arg:"--dev" default:"true" json:"dev,omitempty"`
}

func (args TierArgs) Valid() error {
	missingFields := make([]string, 0)
	if args.MysqlHost == "" {
		missingFields = append(missingFields, "MYSQL_SERVER_ADDRESS")
	}
	if args.MysqlDB == "" {
		missingFields = append(missingFields, "MYSQL_DATABASE_NAME")
	}
	if args.MysqlUsername == "" {
		missingFields = append(missingFields, "MYSQL_USERNAME")
	}
	if args.MysqlPassword == "" {
		missingFields = append(missingFields, "MYSQL_PASSWORD")
	}
	if args.TierID == 0 {
		missingFields = append(missingFields, "TIER_ID")
	}
	if args.ModelStoreS3Bucket == "" {
		missingFields = append(missingFields, "MODEL_STORE_S3_BUCKET")
	}
	if args.ModelStoreEndpointName == "" {
		missingFields = append(missingFields, "MODEL_STORE_ENDPOINT")
	}
	if args.SagemakerExecutionRole == "" {
		missingFields = append(missingFields, "SAGEMAKER_EXECUTION_ROLE")
	}
	if len(missingFields) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missingFields, ", "))
	}
	return nil
}

// Tier carries every connector a request needs, threaded explicitly into
// controllers - there are no process-wide singletons. One process serves one
// tier.
type Tier struct {
	ID              ftypes.RealmID
	DB              db.Connection
	Clock           clock.Clock
	Logger          *zap.Logger
	S3Client        s3.Client
	SagemakerClient sagemaker.SMClient
	SnsClient       mo.Option[sns.Client]
	ModelStore      *modelstore.ModelStore
	Args            TierArgs
}

func CreateFromArgs(args *TierArgs) (tier Tier, err error) {
	tierID := args.TierID
	scope := resource.NewTierScope(tierID)

	// First, create a structured logger that we can then use in other places.
	log.Print("Creating logger")
	var logger *zap.Logger
	if args.Dev {
		logger, err = zap.NewDevelopment()
	} else {
		config := zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		logger, err = config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zap.ErrorLevel),
		)
	}
	if err != nil {
		return tier, fmt.Errorf("failed to construct logger: %v", err)
	}
	logger = logger.With(zap.Uint32("tier_id", tierID.Value()))

	logger.Info("Connecting to mysql")
	mysqlConfig := db.MySQLConfig{
		Host:     args.MysqlHost,
		DBname:   scope.PrefixedName(args.MysqlDB),
		Username: args.MysqlUsername,
		Password: args.MysqlPassword,
		Schema:   Schema,
	}
	sqlConn, err := mysqlConfig.Materialize()
	if err != nil {
		return tier, fmt.Errorf("failed to connect with mysql: %v", err)
	}

	// Periodically record connection pool stats.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for ; true; <-ticker.C {
			db.RecordConnectionStats(sqlConn.(db.Connection))
		}
	}()

	logger.Info("Connecting to sagemaker")
	smclient, err := sagemaker.NewClient(args.SagemakerArgs, logger)
	if err != nil {
		return tier, fmt.Errorf("failed to create sagemaker client: %v", err)
	}

	s3client := s3.NewClient(args.S3Args)

	snsClient := mo.None[sns.Client]()
	if args.SnsArgs.Enabled() {
		logger.Info("Creating sns client")
		snsClient = mo.Some(sns.NewClient(args.SnsArgs))
	}

	return Tier{
		ID:              tierID,
		DB:              sqlConn.(db.Connection),
		Clock:           clock.New(),
		Logger:          logger,
		S3Client:        s3client,
		SagemakerClient: smclient,
		SnsClient:       snsClient,
		ModelStore:      modelstore.NewModelStore(args.ModelStoreArgs, tierID),
		Args:            *args,
	}, nil
}
