package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Column names of the apps table.
const (
	appsTable = "apps"

	colID                      = "id"
	colAppID                   = "app_id"
	colName                    = "name"
	colRootPage                = "root_page"
	colExportFolder            = "export_folder"
	colExportCredentials       = "export_credentials"
	colExportSAPClient         = "export_sap_client"
	colUseBatchDeletes         = "use_batch_deletes"
	colUseBatchWrites          = "use_batch_writes"
	colUseBatchFunctionImports = "use_batch_function_imports"
	colUseRelativeURLs         = "use_relative_urls"
	colODataAdapter            = "odata_adapter"
	colCurrentVersionDate      = "current_version_date"
	colCreatedAt               = "created_at"
	colUpdatedAt               = "updated_at"
	colCreatedBy               = "created_by"
	colUpdatedBy               = "updated_by"
)

// appColumns is the select order scanApp expects.
var appColumns = []string{
	colID, colAppID, colName, colRootPage, colExportFolder,
	colExportCredentials, colExportSAPClient,
	colUseBatchDeletes, colUseBatchWrites, colUseBatchFunctionImports, colUseRelativeURLs,
	colODataAdapter, colCurrentVersionDate,
	colCreatedAt, colUpdatedAt, colCreatedBy, colUpdatedBy,
}

var (
	// AppsColumns describes the apps table. The audit columns at the end
	// are carried by every record.
	AppsColumns = []*schema.Column{
		{Name: colID, Type: field.TypeString, Size: 36},
		{Name: colAppID, Type: field.TypeString},
		{Name: colName, Type: field.TypeString, Default: ""},
		{Name: colRootPage, Type: field.TypeString, Default: ""},
		{Name: colExportFolder, Type: field.TypeString, Default: ""},
		{Name: colExportCredentials, Type: field.TypeBool, Default: false},
		{Name: colExportSAPClient, Type: field.TypeBool, Default: false},
		{Name: colUseBatchDeletes, Type: field.TypeBool, Default: false},
		{Name: colUseBatchWrites, Type: field.TypeBool, Default: false},
		{Name: colUseBatchFunctionImports, Type: field.TypeBool, Default: false},
		{Name: colUseRelativeURLs, Type: field.TypeBool, Default: false},
		{Name: colODataAdapter, Type: field.TypeString, Default: ""},
		{Name: colCurrentVersionDate, Type: field.TypeTime, Nullable: true},
		{Name: colCreatedAt, Type: field.TypeTime},
		{Name: colUpdatedAt, Type: field.TypeTime},
		{Name: colCreatedBy, Type: field.TypeString},
		{Name: colUpdatedBy, Type: field.TypeString},
	}
	// AppsTable holds the schema information for the "apps" table.
	AppsTable = &schema.Table{
		Name:       appsTable,
		Columns:    AppsColumns,
		PrimaryKey: []*schema.Column{AppsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "app_app_id",
				Unique:  false,
				Columns: []*schema.Column{AppsColumns[1]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		AppsTable,
	}
)
