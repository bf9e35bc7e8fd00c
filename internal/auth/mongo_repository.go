package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for MongoDB user repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. voxelworld
	Collection string // e.g. users
	Counters   string // e.g. counters (for auto-increment)
}

// MongoUserRepo implements UserRepository on MongoDB backend.
type MongoUserRepo struct {
	client      *mongo.Client
	collection  *mongo.Collection
	counterColl *mongo.Collection
}

type mongoUser struct {
	UserID       uint64    `bson:"user_id"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password_hash"`
	Privs        uint64    `bson:"privs"`
	CreatedAt    time.Time `bson:"created_at"`
	LastLogin    time.Time `bson:"last_login"`
}

func (d mongoUser) user() *User {
	return &User{
		ID:           d.UserID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Privs:        Privs(d.Privs),
		CreatedAt:    d.CreatedAt,
		LastLogin:    d.LastLogin,
	}
}

// NewMongoUserRepo establishes connection and returns repository.
func NewMongoUserRepo(ctx context.Context, cfg MongoConfig) (*MongoUserRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxelworld"
	}
	if cfg.Collection == "" {
		cfg.Collection = "users"
	}
	if cfg.Counters == "" {
		cfg.Counters = "counters"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	db := client.Database(cfg.Database)
	repo := &MongoUserRepo{
		client:      client,
		collection:  db.Collection(cfg.Collection),
		counterColl: db.Collection(cfg.Counters),
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoUserRepo) ensureIndexes(ctx context.Context) error {
	usernameIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	}
	userIDIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("userid_unique"),
	}
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{usernameIdx, userIDIdx})
	return err
}

// GetUserByUsername implements UserRepository.
func (m *MongoUserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var doc mongoUser
	err := m.collection.FindOne(ctx, bson.M{"username": normalize(username)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.user(), nil
}

// CreateUser inserts a new document and returns created user.
func (m *MongoUserRepo) CreateUser(ctx context.Context, username, passwordHash string, privs Privs) (*User, error) {
	nextID, err := m.nextSequence(ctx, "userid")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	doc := mongoUser{
		UserID:       nextID,
		Username:     normalize(username),
		PasswordHash: passwordHash,
		Privs:        uint64(privs),
		CreatedAt:    now,
		LastLogin:    now,
	}
	_, err = m.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	return doc.user(), nil
}

func (m *MongoUserRepo) set(ctx context.Context, username string, fields bson.M) error {
	res, err := m.collection.UpdateOne(ctx, bson.M{"username": normalize(username)}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (m *MongoUserRepo) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	return m.set(ctx, username, bson.M{"password_hash": passwordHash})
}

func (m *MongoUserRepo) UpdatePrivs(ctx context.Context, username string, privs Privs) error {
	return m.set(ctx, username, bson.M{"privs": uint64(privs)})
}

func (m *MongoUserRepo) TouchLogin(ctx context.Context, username string) error {
	return m.set(ctx, username, bson.M{"last_login": time.Now()})
}

// nextSequence atomically increments a counter and returns new value.
func (m *MongoUserRepo) nextSequence(ctx context.Context, name string) (uint64, error) {
	res := m.counterColl.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return uint64(doc.Seq), nil
}

// Close terminates connection.
func (m *MongoUserRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
