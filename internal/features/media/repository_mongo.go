package media

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"parish-media/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoMediaRepository struct {
	Collection *mongo.Collection
}

func NewMongoMediaRepository(mongodb *database.MongodbDB) MediaRepository {
	return &MongoMediaRepository{
		Collection: mongodb.DB.Collection("media_assets"),
	}
}

func (r *MongoMediaRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "uploaded_by", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	})
	return err
}

func (r *MongoMediaRepository) Create(ctx context.Context, asset *MediaAsset) error {
	_, err := r.Collection.InsertOne(ctx, asset)
	return err
}

func (r *MongoMediaRepository) Get(ctx context.Context, id string) (*MediaAsset, error) {
	var asset MediaAsset
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&asset)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *MongoMediaRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*MediaAsset, error) {
	out := make(map[string]*MediaAsset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := r.Collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var assets []*MediaAsset
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, err
	}
	for _, a := range assets {
		out[a.ID] = a
	}
	return out, nil
}

func (r *MongoMediaRepository) List(ctx context.Context, filter ListFilter) ([]*MediaAsset, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit)).SetSkip(int64(filter.Offset))
	}

	cursor, err := r.Collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var assets []*MediaAsset
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *MongoMediaRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	return r.Collection.CountDocuments(ctx, buildFilter(filter))
}

func (r *MongoMediaRepository) UpdateMetadata(ctx context.Context, id string, patch MetadataPatch, updatedAt time.Time) error {
	set := bson.M{"updated_at": updatedAt}
	if patch.AltText != nil {
		set["alt_text"] = *patch.AltText
	}
	if patch.Caption != nil {
		set["caption"] = *patch.Caption
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Visibility != nil {
		set["visibility"] = string(*patch.Visibility)
	}
	if patch.IsFeatured != nil {
		set["is_featured"] = *patch.IsFeatured
	}

	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (r *MongoMediaRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// buildFilter is the single filter builder behind both List and Count.
func buildFilter(f ListFilter) bson.M {
	var and []bson.M

	if f.Category != "" {
		and = append(and, bson.M{"category": string(f.Category)})
	}
	if f.UploadedBy != "" {
		and = append(and, bson.M{"uploaded_by": f.UploadedBy})
	}
	if f.Visibility != "" {
		and = append(and, bson.M{"visibility": string(f.Visibility)})
	}
	if f.Featured != nil {
		and = append(and, bson.M{"is_featured": *f.Featured})
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
		and = append(and, bson.M{"$or": []bson.M{
			{"original_filename": re},
			{"caption": re},
			{"description": re},
		}})
	}
	if !f.IncludePrivate {
		if f.ViewerID != "" {
			and = append(and, bson.M{"$or": []bson.M{
				{"visibility": string(VisibilityPublic)},
				{"uploaded_by": f.ViewerID},
			}})
		} else {
			and = append(and, bson.M{"visibility": string(VisibilityPublic)})
		}
	}

	if len(and) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": and}
}
