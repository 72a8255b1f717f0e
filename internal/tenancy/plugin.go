package tenancy

import (
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const tenantField = "TenantID"

// Plugin stamps tenant_id on create and filters query, row, update and delete
// statements to the tenant carried by the statement context. Models opt in by
// having a TenantID field.
type Plugin struct{}

func (Plugin) Name() string { return "tenancy" }

func (Plugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("tenancy:stamp", stampTenant); err != nil {
		return err
	}
	if err := db.Callback().Query().Before("gorm:query").Register("tenancy:query", scopeTenant); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenancy:row", scopeTenant); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenancy:update", scopeTenant); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("tenancy:delete", scopeTenant)
}

func tenantSchemaField(db *gorm.DB) *schema.Field {
	if db.Statement.Schema == nil {
		return nil
	}
	return db.Statement.Schema.LookUpField(tenantField)
}

func stampTenant(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	ctx := db.Statement.Context
	t, ok := FromContext(ctx)
	if !ok {
		return
	}
	field := tenantSchemaField(db)
	if field == nil {
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			elem := reflect.Indirect(rv.Index(i))
			if err := field.Set(ctx, elem, t.ID); err != nil {
				db.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := field.Set(ctx, rv, t.ID); err != nil {
			db.AddError(err)
		}
	}
}

func scopeTenant(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	ctx := db.Statement.Context
	if isUnscoped(ctx) {
		return
	}
	t, ok := FromContext(ctx)
	if !ok {
		return
	}
	field := tenantSchemaField(db)
	if field == nil {
		return
	}

	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: db.Statement.Table, Name: field.DBName},
			Value:  t.ID,
		},
	}})
}
