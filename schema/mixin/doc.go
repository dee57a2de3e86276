// Package mixin provides reusable attribute sets for entity descriptors.
//
// An entity lists the mixins it uses; their attributes are appended when the
// entity is registered in a graph:
//
//	name: post
//	mixins: [ time, soft_delete ]
//	attributes:
//	  id:    { type: INTEGER, primaryKey: true }
//	  title: { type: STRING }
//
// Built-in mixins:
//
//	create_time       created_at TIME NULL
//	update_time       updated_at TIME NULL
//	time              create_time + update_time
//	soft_delete       deleted_at TIME NULL
//	time_soft_delete  time + soft_delete
//	tenant_id         tenant_id STRING NOT NULL
//
// The timestamp attributes are filled by the Timestamps hook handler:
//
//	reg := hook.NewRegistry()
//	reg.On(hook.Before, relgraph.OpCreate|relgraph.OpUpdate, mixin.Timestamps(time.Now, descs...))
//
// Custom mixins are added with Register before models are loaded.
package mixin
