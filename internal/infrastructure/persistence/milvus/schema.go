// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionRelationships 关系边集合
	CollectionRelationships = "video_relationships"
	// CollectionUtterances 对话集合
	CollectionUtterances = "video_utterances"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// RelationshipsSchema 关系边 Collection Schema
//
// 只存主键和向量，召回命中后凭 ID 回 Postgres 取全量记录。
func RelationshipsSchema() *entity.Schema {
	return recallSchema(CollectionRelationships, "Video relationship edges for semantic recall")
}

// UtterancesSchema 对话 Collection Schema
func UtterancesSchema() *entity.Schema {
	return recallSchema(CollectionUtterances, "Video dialogue utterances for semantic recall")
}

func recallSchema(name, description string) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    description,
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "video_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
		},
	}
}

// PartitionName 生成分区名称，按视频隔离
func PartitionName(videoID string) string {
	return "video_" + videoID
}
